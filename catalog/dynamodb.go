package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/model"
)

// DDBClient is the subset of the DynamoDB API used by DynamoDB.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

// DynamoDB is a catalog stored in a DynamoDB table. Creation uses a
// conditional write so concurrent creators agree on a single shape.
//
// Table schema:
//   - Partition key: name (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name vecsearch-collections \
//	  --attribute-definitions AttributeName=name,AttributeType=S \
//	  --key-schema AttributeName=name,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DynamoDB struct {
	client    DDBClient
	tableName string
}

// NewDynamoDB creates a catalog backed by tableName.
func NewDynamoDB(client DDBClient, tableName string) *DynamoDB {
	return &DynamoDB{client: client, tableName: tableName}
}

const (
	attrName      = "name"
	attrDimension = "dimension"
	attrMetric    = "metric"
	attrCreatedAt = "created_at"
)

func (d *DynamoDB) key(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrName: &types.AttributeValueMemberS{Value: name},
	}
}

func (d *DynamoDB) Create(ctx context.Context, info model.CollectionInfo) (model.CollectionInfo, bool, error) {
	if err := validate(info); err != nil {
		return model.CollectionInfo{}, false, err
	}

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item: map[string]types.AttributeValue{
			attrName:      &types.AttributeValueMemberS{Value: info.Name},
			attrDimension: &types.AttributeValueMemberN{Value: strconv.Itoa(info.Dimension)},
			attrMetric:    &types.AttributeValueMemberS{Value: info.Metric.String()},
			attrCreatedAt: &types.AttributeValueMemberS{Value: info.CreatedAt.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression:      aws.String("attribute_not_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": attrName},
	})
	if err == nil {
		return info, true, nil
	}

	var condErr *types.ConditionalCheckFailedException
	if !errors.As(err, &condErr) {
		return model.CollectionInfo{}, false, fmt.Errorf("catalog: put %q: %w", info.Name, err)
	}

	existing, err := d.Get(ctx, info.Name)
	if err != nil {
		return model.CollectionInfo{}, false, err
	}
	return resolve(existing, info)
}

func (d *DynamoDB) Get(ctx context.Context, name string) (model.CollectionInfo, error) {
	resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.key(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.CollectionInfo{}, fmt.Errorf("catalog: get %q: %w", name, err)
	}
	if len(resp.Item) == 0 {
		return model.CollectionInfo{}, ErrNotFound
	}
	return decodeItem(resp.Item)
}

func (d *DynamoDB) List(ctx context.Context) ([]model.CollectionInfo, error) {
	var out []model.CollectionInfo

	p := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:      aws.String(d.tableName),
		ConsistentRead: aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		for _, item := range page.Items {
			info, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, info)
		}
	}

	sortByName(out)
	return out, nil
}

func (d *DynamoDB) Delete(ctx context.Context, name string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(d.tableName),
		Key:                      d.key(name),
		ConditionExpression:      aws.String("attribute_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": attrName},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrNotFound
		}
		return fmt.Errorf("catalog: delete %q: %w", name, err)
	}
	return nil
}

func decodeItem(item map[string]types.AttributeValue) (model.CollectionInfo, error) {
	nameAttr, ok := item[attrName].(*types.AttributeValueMemberS)
	if !ok {
		return model.CollectionInfo{}, errors.New("catalog: item without name")
	}
	info := model.CollectionInfo{Name: nameAttr.Value}

	dimAttr, ok := item[attrDimension].(*types.AttributeValueMemberN)
	if !ok {
		return model.CollectionInfo{}, fmt.Errorf("catalog: %q: invalid dimension attribute", info.Name)
	}
	dim, err := strconv.Atoi(dimAttr.Value)
	if err != nil {
		return model.CollectionInfo{}, fmt.Errorf("catalog: %q: parse dimension: %w", info.Name, err)
	}
	info.Dimension = dim

	metricAttr, ok := item[attrMetric].(*types.AttributeValueMemberS)
	if !ok {
		return model.CollectionInfo{}, fmt.Errorf("catalog: %q: invalid metric attribute", info.Name)
	}
	if info.Metric, err = distance.ParseMetric(metricAttr.Value); err != nil {
		return model.CollectionInfo{}, fmt.Errorf("catalog: %q: %w", info.Name, err)
	}

	if ts, ok := item[attrCreatedAt].(*types.AttributeValueMemberS); ok {
		if info.CreatedAt, err = time.Parse(time.RFC3339Nano, ts.Value); err != nil {
			return model.CollectionInfo{}, fmt.Errorf("catalog: %q: parse created_at: %w", info.Name, err)
		}
	}
	return info, nil
}
