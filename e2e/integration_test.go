//go:build e2e

// Package e2e contains end-to-end integration tests using a real DynamoDB table.
// Run with: DYNAMODB_ENDPOINT=http://localhost:8000 go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/notebook/internal/app"
	"github.com/jacentio/notebook/internal/config"
	"github.com/jacentio/notebook/internal/keys"
	"github.com/jacentio/notebook/projection"
	"github.com/jacentio/notebook/store"
	"github.com/jacentio/notebook/stream"
)

// Table names are unique per test run to avoid conflicts.
const tablePrefix = "notebook-e2e-test"

var (
	tableName string

	ddbClient *dynamodb.Client
	testStore *store.Store
	reader    *projection.Reader
	writer    *projection.Writer
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	tableName = fmt.Sprintf("%s-%s", tablePrefix, uuid.New().String()[:8])
	fmt.Printf("Table: %s\n", tableName)

	cfg := config.Default()
	cfg.TableName = tableName
	cfg.Region = os.Getenv("AWS_REGION")
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	cfg.Endpoint = os.Getenv("DYNAMODB_ENDPOINT")

	ctx := context.Background()
	var err error
	ddbClient, err = app.NewDynamoDBClient(ctx, cfg)
	if err != nil {
		fmt.Printf("Failed to create DynamoDB client: %v\n", err)
		os.Exit(1)
	}

	if err := createTable(ctx); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	testStore = store.New(ddbClient, store.Config{TableName: tableName})
	reader = projection.NewReader(testStore, nil, projection.OrderByCreated())
	writer = projection.NewWriter(testStore, nil)

	code := m.Run()

	if err := deleteTable(ctx); err != nil {
		fmt.Printf("Failed to delete table: %v\n", err)
	}
	os.Exit(code)
}

func createTable(ctx context.Context) error {
	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(store.AttrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(store.AttrSK), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(store.AttrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(store.AttrSK), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(ddbClient)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", tableName, err)
	}
	return nil
}

func deleteTable(ctx context.Context) error {
	_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(tableName)})
	return err
}

// --- Document Tests ---

func TestPersistAndGetDocument(t *testing.T) {
	ctx := context.Background()

	id, err := writer.PersistDocument(ctx, projection.DocumentInput{
		Title:       "Plan",
		Description: "Q3",
		UpdatedBy:   "ana",
		Groups: []projection.GroupInput{
			{Title: "Tasks", Notes: []projection.NoteInput{{Title: "Buy milk", CreatedBy: "ana"}}},
			{Title: "Ideas"},
		},
	})
	require.NoError(t, err)

	doc, err := reader.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Plan", doc.Title)
	assert.Equal(t, int64(1), doc.Version)
	require.Len(t, doc.Groups, 2)

	var notes int
	for _, g := range doc.Groups {
		assert.Equal(t, id, g.Parent)
		notes += len(g.Notes)
	}
	assert.Equal(t, 1, notes)

	// Stored item carries the raw key scheme.
	item, err := testStore.GetItem(ctx, store.Key{Partition: "document", Sort: keys.DocumentSK(id)}, true)
	require.NoError(t, err)
	title, err := item.StringAttr("title")
	require.NoError(t, err)
	assert.Equal(t, "Plan", title)
}

func TestGetDocument_NotFound(t *testing.T) {
	_, err := reader.GetDocument(context.Background(), "0-000000000000")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListDocuments_IncludesPersisted(t *testing.T) {
	ctx := context.Background()
	id, err := writer.PersistDocument(ctx, projection.DocumentInput{Title: "Listed"})
	require.NoError(t, err)

	docs, err := reader.ListDocuments(ctx)
	require.NoError(t, err)

	var found bool
	for _, d := range docs {
		if d.ID == id {
			found = true
			assert.Empty(t, d.Groups)
		}
	}
	assert.True(t, found, "document %s not listed", id)
}

func TestPersistDocument_IdentityCollision(t *testing.T) {
	ctx := context.Background()
	same := keys.NewIdentity(time.Unix(1, 0))
	fixed := projection.NewWriter(testStore, nil, projection.WithIDGenerator(func(time.Time) string { return same }))

	_, err := fixed.PersistDocument(ctx, projection.DocumentInput{Title: "First"})
	require.NoError(t, err)

	_, err = fixed.PersistDocument(ctx, projection.DocumentInput{Title: "Second"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	doc, err := reader.GetDocument(ctx, same)
	require.NoError(t, err)
	assert.Equal(t, "First", doc.Title)
}

// --- Note Tests ---

func TestPersistNote(t *testing.T) {
	ctx := context.Background()
	docID, err := writer.PersistDocument(ctx, projection.DocumentInput{
		Title:  "Plan",
		Groups: []projection.GroupInput{{Title: "Tasks"}},
	})
	require.NoError(t, err)

	doc, err := reader.GetDocument(ctx, docID)
	require.NoError(t, err)
	groupID := doc.Groups[0].ID

	noteID, err := writer.PersistNote(ctx, docID, groupID, projection.NoteInput{Title: "Call Bob", UpdatedBy: "bo"})
	require.NoError(t, err)

	doc, err = reader.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, doc.Groups[0].Notes, 1)
	assert.Equal(t, noteID, doc.Groups[0].Notes[0].ID)
	assert.Equal(t, int64(2), doc.Groups[0].Version)
	assert.Equal(t, "bo", doc.Groups[0].UpdatedBy)
}

func TestPersistNote_Integrity(t *testing.T) {
	ctx := context.Background()
	a, err := writer.PersistDocument(ctx, projection.DocumentInput{Title: "A", Groups: []projection.GroupInput{{Title: "GA"}}})
	require.NoError(t, err)
	b, err := writer.PersistDocument(ctx, projection.DocumentInput{Title: "B", Groups: []projection.GroupInput{{Title: "GB"}}})
	require.NoError(t, err)

	docB, err := reader.GetDocument(ctx, b)
	require.NoError(t, err)

	_, err = writer.PersistNote(ctx, a, docB.Groups[0].ID, projection.NoteInput{Title: "n"})
	assert.ErrorIs(t, err, store.ErrIntegrity)

	_, err = writer.PersistNote(ctx, a, "0-000000000000", projection.NoteInput{Title: "n"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPersistNote_ConcurrentInsertions(t *testing.T) {
	ctx := context.Background()
	docID, err := writer.PersistDocument(ctx, projection.DocumentInput{Title: "Busy", Groups: []projection.GroupInput{{Title: "G"}}})
	require.NoError(t, err)
	doc, err := reader.GetDocument(ctx, docID)
	require.NoError(t, err)
	groupID := doc.Groups[0].ID

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = writer.PersistNote(ctx, docID, groupID, projection.NoteInput{Title: fmt.Sprintf("note %d", i)})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrConcurrentModification), errors.Is(err, store.ErrTransaction):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	require.GreaterOrEqual(t, ok, 1)

	doc, err = reader.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, doc.Groups[0].Notes, ok)
	assert.Equal(t, int64(1+ok), doc.Groups[0].Version)
}

// --- Delete & Cascade Tests ---

func TestDeleteDocument_StreamCascade(t *testing.T) {
	ctx := context.Background()
	docID, err := writer.PersistDocument(ctx, projection.DocumentInput{
		Title:  "Doomed",
		Groups: []projection.GroupInput{{Title: "G", Notes: []projection.NoteInput{{Title: "n"}}}},
	})
	require.NoError(t, err)
	doc, err := reader.GetDocument(ctx, docID)
	require.NoError(t, err)
	groupSK := keys.GroupSK(doc.Groups[0].ID)

	require.NoError(t, writer.DeleteDocument(ctx, docID))
	_, err = reader.GetDocument(ctx, docID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// DynamoDB Local has no stream trigger; feed the handler the records a
	// stream would have delivered.
	handler := stream.NewHandler(testStore, projection.Relationships(), nil)
	ttl := time.Now().Unix()
	record := func(pk, sk string) events.DynamoDBEventRecord {
		return events.DynamoDBEventRecord{
			EventName: "MODIFY",
			Change: events.DynamoDBStreamRecord{
				OldImage: map[string]events.DynamoDBAttributeValue{
					"PK": events.NewStringAttribute(pk),
					"SK": events.NewStringAttribute(sk),
				},
				NewImage: map[string]events.DynamoDBAttributeValue{
					"PK":  events.NewStringAttribute(pk),
					"SK":  events.NewStringAttribute(sk),
					"ttl": events.NewNumberAttribute(fmt.Sprint(ttl)),
				},
			},
		}
	}

	require.NoError(t, handler.HandleCascadeDelete(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{record("document", keys.DocumentSK(docID))},
	}))
	groups, err := testStore.Query(ctx, "group", store.Equals(store.AttrParent, keys.DocumentSK(docID)))
	require.NoError(t, err)
	assert.Empty(t, groups)

	require.NoError(t, handler.HandleCascadeDelete(ctx, events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{record("group", groupSK)},
	}))
	notes, err := testStore.Query(ctx, "note", store.Equals(store.AttrParent, groupSK))
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDeleteDocument_SynchronousCascade(t *testing.T) {
	ctx := context.Background()
	handler := stream.NewHandler(testStore, projection.Relationships(), nil)
	w := projection.NewWriter(testStore, nil, projection.WithCascade(handler))

	docID, err := w.PersistDocument(ctx, projection.DocumentInput{
		Title:  "Doomed",
		Groups: []projection.GroupInput{{Title: "G", Notes: []projection.NoteInput{{Title: "n"}}}},
	})
	require.NoError(t, err)
	doc, err := reader.GetDocument(ctx, docID)
	require.NoError(t, err)
	groupSK := keys.GroupSK(doc.Groups[0].ID)

	require.NoError(t, w.DeleteDocument(ctx, docID))

	notes, err := testStore.Query(ctx, "note", store.Equals(store.AttrParent, groupSK))
	require.NoError(t, err)
	assert.Empty(t, notes)

	assert.ErrorIs(t, w.DeleteDocument(ctx, docID), store.ErrNotFound)
}
