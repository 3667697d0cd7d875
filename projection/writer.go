package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jacentio/notebook/internal/keys"
	"github.com/jacentio/notebook/store"
)

// DefaultMaxTransactItems is DynamoDB's limit on items per transaction.
const DefaultMaxTransactItems = 100

// Cascader soft-deletes the descendants of a deleted item.
type Cascader interface {
	Cascade(ctx context.Context, key store.Key, ttl int64) error
}

// Writer fans hierarchical requests out into flat items.
type Writer struct {
	gw       store.Gateway
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func(time.Time) string
	maxItems int
	cascade  Cascader
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithClock overrides the clock used for creation timestamps.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// WithIDGenerator overrides identity minting.
func WithIDGenerator(newID func(time.Time) string) WriterOption {
	return func(w *Writer) { w.newID = newID }
}

// WithMaxTransactItems caps the number of items one document may fan out to.
func WithMaxTransactItems(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.maxItems = n
		}
	}
}

// WithCascade runs c synchronously before a document is deleted. Leave it
// unset when a stream consumer performs the cascade.
func WithCascade(c Cascader) WriterOption {
	return func(w *Writer) { w.cascade = c }
}

// NewWriter creates a Writer.
func NewWriter(gw store.Gateway, logger *zap.Logger, opts ...WriterOption) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		gw:       gw,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
		newID:    keys.NewIdentity,
		maxItems: DefaultMaxTransactItems,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) check(in any) error {
	if err := w.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}
	return nil
}

// checkID rejects identities that were not minted by keys.NewIdentity.
func checkID(kind keys.Kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty %s id", store.ErrInvalidInput, kind)
	}
	if _, err := keys.ParseIdentity(id); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}
	return nil
}

// PersistDocument writes a document with its groups and their notes in one
// transaction and returns the document identity.
func (w *Writer) PersistDocument(ctx context.Context, in DocumentInput) (string, error) {
	if err := w.check(in); err != nil {
		return "", err
	}
	if n := in.ItemCount(); n > w.maxItems {
		return "", fmt.Errorf("%w: document fans out to %d items, limit is %d", store.ErrInvalidInput, n, w.maxItems)
	}

	t := w.now()
	doc := Document{
		ID:          w.newID(t),
		Title:       in.Title,
		Description: in.Description,
		Created:     t.Unix(),
		LastUpdated: t.Unix(),
		UpdatedBy:   in.UpdatedBy,
		Version:     1,
	}

	writes := make([]store.Write, 0, in.ItemCount())
	writes = append(writes, store.PutIf(documentItem(doc), store.NotExists()))

	for _, gin := range in.Groups {
		created := t
		if gin.Created > 0 {
			created = time.Unix(gin.Created, 0)
		}
		g := Group{
			ID:          w.newID(created),
			Title:       gin.Title,
			Description: gin.Description,
			Created:     created.Unix(),
			LastUpdated: t.Unix(),
			UpdatedBy:   gin.UpdatedBy,
			Parent:      doc.ID,
			Version:     1,
		}
		writes = append(writes, store.PutIf(groupItem(g), store.NotExists()))

		for _, nin := range gin.Notes {
			writes = append(writes, store.PutIf(noteItem(w.note(nin, g.ID, t)), store.NotExists()))
		}
	}

	if err := w.gw.TransactWrite(ctx, writes); err != nil {
		var txErr *store.TransactionError
		if errors.As(err, &txErr) && len(txErr.Failed) > 0 {
			err = fmt.Errorf("%w: %w", store.ErrAlreadyExists, err)
		}
		return "", fmt.Errorf("persist document %s: %w", doc.ID, err)
	}

	w.logger.Info("document persisted",
		zap.String("document", doc.ID),
		zap.Int("groups", len(in.Groups)),
		zap.Int("items", len(writes)),
	)
	return doc.ID, nil
}

func (w *Writer) note(in NoteInput, groupID string, now time.Time) Note {
	created := now
	if in.Created > 0 {
		created = time.Unix(in.Created, 0)
	}
	return Note{
		ID:          w.newID(created),
		Title:       in.Title,
		Description: in.Description,
		Created:     created.Unix(),
		CreatedBy:   in.CreatedBy,
		UpdatedBy:   in.UpdatedBy,
		Parent:      groupID,
	}
}

// PersistNote adds a note to an existing group of an existing document and
// returns the note identity.
//
// The group must belong to the document. The note is written together with
// a version bump of its group, so of two concurrent insertions that read the
// same group version only one succeeds; the other fails with
// store.ErrConcurrentModification.
func (w *Writer) PersistNote(ctx context.Context, documentID, groupID string, in NoteInput) (string, error) {
	if err := checkID(keys.KindDocument, documentID); err != nil {
		return "", err
	}
	if err := checkID(keys.KindGroup, groupID); err != nil {
		return "", err
	}
	if err := w.check(in); err != nil {
		return "", err
	}

	dk := keys.DocumentKey(documentID)
	docKey := store.Key{Partition: dk.Partition, Sort: dk.Sort}
	if _, err := w.gw.GetItem(ctx, docKey, true); err != nil {
		return "", fmt.Errorf("persist note: document %s: %w", documentID, err)
	}

	gk := keys.GroupKey(groupID, documentID)
	group, err := w.gw.GetItem(ctx, store.Key{Partition: gk.Partition, Sort: gk.Sort}, true)
	if err != nil {
		return "", fmt.Errorf("persist note: group %s: %w", groupID, err)
	}

	parent, err := group.StringAttr(store.AttrParent)
	if err != nil {
		return "", fmt.Errorf("persist note: %w", err)
	}
	if parent != dk.Sort {
		return "", fmt.Errorf("%w: group %s belongs to %s, not %s", store.ErrIntegrity, groupID, parent, dk.Sort)
	}
	version, err := group.OptionalNumberAttr(store.AttrVersion, 0)
	if err != nil {
		return "", fmt.Errorf("persist note: %w", err)
	}

	t := w.now()
	n := w.note(in, groupID, t)

	touched := group.Clone()
	touched[store.AttrVersion] = store.N(version + 1)
	touched[attrLastUpdated] = store.N(t.Unix())
	if in.UpdatedBy != "" {
		touched[attrUpdatedBy] = store.S(in.UpdatedBy)
	}

	err = w.gw.TransactWrite(ctx, []store.Write{
		store.CheckIf(docKey, store.Active()),
		store.PutIf(touched, store.AtVersion(version)),
		store.PutIf(noteItem(n), store.NotExists()),
	})
	if err != nil {
		return "", fmt.Errorf("persist note %s: %w", n.ID, noteConflict(err))
	}

	w.logger.Info("note persisted",
		zap.String("document", documentID),
		zap.String("group", groupID),
		zap.String("note", n.ID),
	)
	return n.ID, nil
}

// noteConflict refines a rejected note transaction by the write that failed.
func noteConflict(err error) error {
	var txErr *store.TransactionError
	if !errors.As(err, &txErr) {
		return err
	}
	switch {
	case txErr.FailedAt(0):
		return fmt.Errorf("%w: document deleted: %w", store.ErrNotFound, err)
	case txErr.FailedAt(1):
		return fmt.Errorf("%w: %w", store.ErrConcurrentModification, err)
	case txErr.FailedAt(2):
		return fmt.Errorf("%w: %w", store.ErrAlreadyExists, err)
	}
	return err
}

// DeleteDocument soft-deletes a document. Its groups and notes become
// unreachable at once. With a cascade configured they are soft-deleted
// before the document; otherwise the stream handler removes them.
func (w *Writer) DeleteDocument(ctx context.Context, id string) error {
	if err := checkID(keys.KindDocument, id); err != nil {
		return err
	}
	dk := keys.DocumentKey(id)
	key := store.Key{Partition: dk.Partition, Sort: dk.Sort}

	if _, err := w.gw.GetItem(ctx, key, true); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}

	// Children go first: while the document stays active a failed cascade
	// can be finished by deleting it again.
	ttl := w.now().Unix()
	if w.cascade != nil {
		if err := w.cascade.Cascade(ctx, key, ttl); err != nil {
			return fmt.Errorf("delete document %s: cascade: %w", id, err)
		}
	}

	if err := w.gw.SoftDelete(ctx, key, ttl); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}

	w.logger.Info("document deleted", zap.String("document", id), zap.Int64("ttl", ttl))
	return nil
}

// Relationships returns the ownership graph used by the delete cascade:
// documents own groups, groups own notes.
func Relationships() *store.Registry {
	r := store.NewRegistry()
	r.Register(store.Relationship{
		ParentType:    string(keys.KindDocument),
		ChildType:     string(keys.KindGroup),
		ParentKeyAttr: store.AttrParent,
	})
	r.Register(store.Relationship{
		ParentType:    string(keys.KindGroup),
		ChildType:     string(keys.KindNote),
		ParentKeyAttr: store.AttrParent,
	})
	return r
}
