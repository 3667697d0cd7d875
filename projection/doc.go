// Package projection maps the notebook hierarchy onto the single table.
//
// A Document owns Groups, a Group owns Notes. On the way in, a
// DocumentInput is fanned out into flat items (one per entity) whose parent
// attribute holds the owner's sort key, and written in one transaction. On
// the way out, Aggregate rebuilds the hierarchy from any collection of flat
// items with parent-pointer joins.
//
// Reader and Writer bind both directions to a store.Gateway:
//
//	gw := store.New(client, store.Config{TableName: "notes"})
//	w := projection.NewWriter(gw, logger)
//	id, err := w.PersistDocument(ctx, projection.DocumentInput{Title: "Plan"})
//
//	r := projection.NewReader(gw, logger, projection.OrderByCreated())
//	doc, err := r.GetDocument(ctx, id)
package projection
