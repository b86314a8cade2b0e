package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bbernstein/busstops/backend-go/internal/models"
	"github.com/rs/zerolog/log"
)

// DynamoDBClient defines the DynamoDB operations the geocode cache needs
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// GeocodeCacheProvider stores resolved coordinates by normalized address.
type GeocodeCacheProvider interface {
	GetGeocode(ctx context.Context, address string) (*GeocodeRecord, error)
	SaveGeocode(ctx context.Context, address string, coords models.Coordinates) error
}

// GeocodeRecord is one cached address resolution
type GeocodeRecord struct {
	Address     string  `dynamodbav:"address"`
	Lat         float64 `dynamodbav:"lat"`
	Lng         float64 `dynamodbav:"lng"`
	LastUpdated int64   `dynamodbav:"lastUpdated"`
	TTL         int64   `dynamodbav:"ttl"`
}

func (r GeocodeRecord) Coordinates() models.Coordinates {
	return models.Coordinates{Lat: r.Lat, Lng: r.Lng}
}

// DynamoGeocodeCache handles caching geocode results in DynamoDB
type DynamoGeocodeCache struct {
	client    DynamoDBClient
	tableName string
	ttl       time.Duration
	clock     clock
}

var _ GeocodeCacheProvider = (*DynamoGeocodeCache)(nil)

func NewDynamoGeocodeCache(client DynamoDBClient, tableName string, ttl time.Duration) *DynamoGeocodeCache {
	return &DynamoGeocodeCache{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		clock:     systemClock{},
	}
}

// NormalizeAddress is the cache key for an address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// GetGeocode returns nil without error on a miss or an expired record.
func (c *DynamoGeocodeCache) GetGeocode(ctx context.Context, address string) (*GeocodeRecord, error) {
	key := NormalizeAddress(address)

	result, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"address": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting geocode from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var record GeocodeRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling geocode record: %w", err)
	}

	// DynamoDB TTL deletion lags, so expiry is checked here too
	if c.clock.Now().Unix() > record.TTL {
		log.Debug().Str("address", key).Msg("Geocode cache expired")
		return nil, nil
	}

	return &record, nil
}

func (c *DynamoGeocodeCache) SaveGeocode(ctx context.Context, address string, coords models.Coordinates) error {
	key := NormalizeAddress(address)
	if key == "" {
		return fmt.Errorf("address is required")
	}

	now := c.clock.Now().Unix()
	record := GeocodeRecord{
		Address:     key,
		Lat:         coords.Lat,
		Lng:         coords.Lng,
		LastUpdated: now,
		TTL:         now + int64(c.ttl.Seconds()),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshaling geocode record: %w", err)
	}

	if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("putting geocode in DynamoDB: %w", err)
	}

	log.Debug().Str("address", key).Msg("Saved geocode to cache")
	return nil
}
