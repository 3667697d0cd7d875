package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// DynamoDBAPI is the subset of the DynamoDB client used by Store.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store is the DynamoDB implementation of Gateway.
type Store struct {
	client DynamoDBAPI
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new Store instance.
func New(client DynamoDBAPI, config Config, opts ...Option) *Store {
	config.validate()
	s := &Store{
		client: client,
		config: config,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TableName returns the table the store reads and writes.
func (s *Store) TableName() string {
	return s.config.TableName
}

// Scan reads every active item in the table.
func (s *Store) Scan(ctx context.Context) ([]Item, error) {
	expr, err := expression.NewBuilder().WithFilter(ActiveFilter(s.now().Unix())).Build()
	if err != nil {
		return nil, fmt.Errorf("build scan expression: %w", err)
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.TableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var items []Item
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.fail("scan", Key{}, err)
		}
		for _, raw := range page.Items {
			items = append(items, fromAttributeMap(raw))
		}
	}

	s.logger.Debug("scan", zap.String("table", s.config.TableName), zap.Int("items", len(items)))
	return items, nil
}

// Query reads the active items of one partition. A filter with several
// values is split into IN filters of at most MaxFilterValues operands.
func (s *Store) Query(ctx context.Context, partition string, filter *Filter) ([]Item, error) {
	if filter == nil {
		return s.query(ctx, partition, "", nil)
	}

	var items []Item
	for _, chunk := range chunkStrings(filter.Values, s.config.MaxFilterValues) {
		page, err := s.query(ctx, partition, filter.Attr, chunk)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
	}
	return items, nil
}

func (s *Store) query(ctx context.Context, partition, attr string, values []string) ([]Item, error) {
	keyCond := expression.Key(AttrPK).Equal(expression.Value(partition))
	filter := ActiveFilter(s.now().Unix())
	if attr != "" {
		filter = filter.And(matchAny(attr, values))
	}

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("build query expression: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var items []Item
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.fail("query", Key{Partition: partition}, err)
		}
		for _, raw := range page.Items {
			items = append(items, fromAttributeMap(raw))
		}
	}

	s.logger.Debug("query",
		zap.String("table", s.config.TableName),
		zap.String("partition", partition),
		zap.String("filterAttr", attr),
		zap.Int("filterValues", len(values)),
		zap.Int("items", len(items)),
	)
	return items, nil
}

// GetItem retrieves an item by key, returning ErrNotFound if deleted or missing.
func (s *Store) GetItem(ctx context.Context, key Key, consistent bool) (Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.TableName),
		Key:            keyAttributes(key),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return nil, s.fail("get", key, err)
	}
	if result.Item == nil {
		return nil, &OpError{Op: "get", Table: s.config.TableName, Key: key, Err: ErrNotFound}
	}

	item := fromAttributeMap(result.Item)
	// Check if item is deleted (has expired TTL)
	if IsDeleted(item, s.now().Unix()) {
		return nil, &OpError{Op: "get", Table: s.config.TableName, Key: key, Err: ErrNotFound}
	}
	return item, nil
}

// PutItem upserts a single item.
func (s *Store) PutItem(ctx context.Context, item Item) error {
	if err := ValidateItem(item); err != nil {
		return err
	}
	av, err := toAttributeMap(item)
	if err != nil {
		return &OpError{Op: "put", Table: s.config.TableName, Key: item.Key(), Err: err}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.TableName),
		Item:      av,
	})
	if err != nil {
		return s.fail("put", item.Key(), err)
	}

	s.logger.Debug("put", zap.String("table", s.config.TableName), zap.Stringer("key", item.Key()))
	return nil
}

// TransactWrite applies writes atomically with TransactWriteItems.
func (s *Store) TransactWrite(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	if err := ValidateWrites(writes); err != nil {
		return err
	}

	now := s.now().Unix()
	items := make([]types.TransactWriteItem, 0, len(writes))
	for i, w := range writes {
		item, err := s.transactItem(w, now)
		if err != nil {
			return fmt.Errorf("write %d: %w", i, err)
		}
		items = append(items, item)
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return s.mapTransactionError(err)
	}

	s.logger.Debug("transact write", zap.String("table", s.config.TableName), zap.Int("items", len(items)))
	return nil
}

func (s *Store) transactItem(w Write, now int64) (types.TransactWriteItem, error) {
	cond, hasCond := conditionBuilder(w.Cond, now)

	var expr expression.Expression
	if hasCond {
		var err error
		expr, err = expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("build condition: %w", err)
		}
	}

	if w.Check != nil {
		if !hasCond {
			return types.TransactWriteItem{}, fmt.Errorf("%w: condition check without condition", ErrInvalidInput)
		}
		return types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:                 aws.String(s.config.TableName),
				Key:                       keyAttributes(*w.Check),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			},
		}, nil
	}

	av, err := toAttributeMap(w.Put)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	put := &types.Put{
		TableName: aws.String(s.config.TableName),
		Item:      av,
	}
	if hasCond {
		put.ConditionExpression = expr.Condition()
		put.ExpressionAttributeNames = expr.Names()
		put.ExpressionAttributeValues = expr.Values()
	}
	return types.TransactWriteItem{Put: put}, nil
}

// SoftDelete marks an item for deletion by setting its TTL.
// This also increments the version to fail concurrent updates.
func (s *Store) SoftDelete(ctx context.Context, key Key, ttl int64) error {
	update := expression.
		Set(expression.Name(AttrTTL), expression.Value(ttl)).
		Set(expression.Name(AttrVersion), expression.Plus(
			expression.IfNotExists(expression.Name(AttrVersion), expression.Value(0)),
			expression.Value(1),
		))
	cond := expression.AttributeExists(expression.Name(AttrPK)).
		And(expression.AttributeNotExists(expression.Name(AttrTTL)))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build soft delete expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.TableName),
		Key:                       keyAttributes(key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	// Ignore condition failure - missing or already has TTL (already deleted)
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	if err != nil {
		return s.fail("soft-delete", key, err)
	}

	s.logger.Debug("soft delete", zap.String("table", s.config.TableName), zap.Stringer("key", key), zap.Int64("ttl", ttl))
	return nil
}

// mapTransactionError maps DynamoDB transaction errors. Cancellation
// reasons are positional: reason i belongs to write i.
func (s *Store) mapTransactionError(err error) error {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return s.fail("transact-write", Key{}, err)
	}

	result := &TransactionError{Table: s.config.TableName}
	var reasons []string
	for i, reason := range txErr.CancellationReasons {
		code := aws.ToString(reason.Code)
		switch code {
		case "", "None":
		case "ConditionalCheckFailed":
			result.Failed = append(result.Failed, i)
		default:
			reasons = append(reasons, fmt.Sprintf("%d:%s", i, code))
		}
	}
	result.Reason = strings.Join(reasons, ",")

	s.logger.Debug("transaction cancelled",
		zap.String("table", s.config.TableName),
		zap.Ints("failed", result.Failed),
		zap.String("reasons", result.Reason),
	)
	return result
}

// fail wraps a client error as ErrGateway, recording the service error code.
func (s *Store) fail(op string, key Key, err error) error {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("table", s.config.TableName),
		zap.Stringer("key", key),
		zap.Error(err),
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		fields = append(fields, zap.String("code", apiErr.ErrorCode()), zap.Stringer("fault", apiErr.ErrorFault()))
	}
	s.logger.Debug("dynamodb call failed", fields...)
	return WrapGatewayError(op, s.config.TableName, key, err)
}

// conditionBuilder translates a Condition. The bool is false for CondNone.
func conditionBuilder(c Condition, now int64) (expression.ConditionBuilder, bool) {
	switch c.Kind {
	case CondNotExists:
		return expression.AttributeNotExists(expression.Name(AttrPK)), true
	case CondActive:
		return ActiveCondition(now), true
	case CondVersion:
		version := expression.Name(AttrVersion).Equal(expression.Value(c.Version))
		if c.Version == 0 {
			version = expression.AttributeNotExists(expression.Name(AttrVersion)).Or(version)
		}
		return ActiveCondition(now).And(version), true
	}
	return expression.ConditionBuilder{}, false
}

// matchAny builds an exact-match condition on attr.
func matchAny(attr string, values []string) expression.ConditionBuilder {
	name := expression.Name(attr)
	if len(values) == 1 {
		return name.Equal(expression.Value(values[0]))
	}
	operands := make([]expression.OperandBuilder, 0, len(values)-1)
	for _, v := range values[1:] {
		operands = append(operands, expression.Value(v))
	}
	return name.In(expression.Value(values[0]), operands...)
}

func chunkStrings(values []string, size int) [][]string {
	var chunks [][]string
	for len(values) > size {
		chunks = append(chunks, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		chunks = append(chunks, values)
	}
	return chunks
}

func keyAttributes(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: key.Partition},
		AttrSK: &types.AttributeValueMemberS{Value: key.Sort},
	}
}

// toAttributeMap converts an Item to a DynamoDB item.
func toAttributeMap(item Item) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(item))
	for name, v := range item {
		switch v.Kind() {
		case KindString:
			s, _ := v.AsString()
			out[name] = &types.AttributeValueMemberS{Value: s}
		case KindNumber:
			n, _ := v.AsNumber()
			av, err := attributevalue.Marshal(n)
			if err != nil {
				return nil, fmt.Errorf("marshal %q: %w", name, err)
			}
			out[name] = av
		case KindAbsent:
		default:
			return nil, fmt.Errorf("%w: attribute %q has %s value", ErrInvalidInput, name, v.Kind())
		}
	}
	return out, nil
}

// fromAttributeMap converts a DynamoDB item to an Item.
func fromAttributeMap(raw map[string]types.AttributeValue) Item {
	item := make(Item, len(raw))
	for name, av := range raw {
		item[name] = fromAttributeValue(av)
	}
	return item
}

func fromAttributeValue(av types.AttributeValue) Value {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return S(v.Value)
	case *types.AttributeValueMemberN:
		var n int64
		if err := attributevalue.Unmarshal(v, &n); err != nil {
			return Unsupported()
		}
		return N(n)
	}
	return Unsupported()
}
