package devserver

// Seed populates the store with a small demo dataset: two users with a
// product-scoped thread and a short history.
func Seed(store *Store) {
	t := store.CreateThread("buyer-1", "supplier-1", "product-42")

	lines := []struct {
		sender  string
		content string
	}{
		{"buyer-1", "Hi, is this item still available?"},
		{"supplier-1", "Yes, we have stock ready to ship."},
		{"buyer-1", "Great. What's the lead time for 500 units?"},
		{"supplier-1", "About two weeks including QC."},
	}

	for _, line := range lines {
		store.AppendMessage(line.sender, t.ID, line.content)
	}
}
