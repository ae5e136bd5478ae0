package index

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DynamoDB is an Index kept in a DynamoDB table whose partition key is the
// string attribute "id". The storage key is kept in the "k" attribute.
type DynamoDB struct {
	table string
	ddb   dynamodbiface.DynamoDBAPI

	// Do throttling on our side based on configured RCUs/WCUs so the
	// client doesn't have to retry.
	getLimiter *rate.Limiter
	putLimiter *rate.Limiter
}

func NewDynamoDB(profile, region, table string) (*DynamoDB, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewSharedCredentials("", profile),
	})
	if err != nil {
		return nil, err
	}
	x := NewDynamoDBWithClient(dynamodb.New(sess), table)
	if err := x.configureLimiters(); err != nil {
		return nil, err
	}
	return x, nil
}

// NewDynamoDBWithClient uses the given client and does not throttle.
func NewDynamoDBWithClient(ddb dynamodbiface.DynamoDBAPI, table string) *DynamoDB {
	return &DynamoDB{
		table:      table,
		ddb:        ddb,
		getLimiter: rate.NewLimiter(rate.Inf, 1),
		putLimiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func (x *DynamoDB) configureLimiters() error {
	result, err := x.ddb.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: &x.table,
	})
	if err != nil {
		return err
	}
	pt := result.Table.ProvisionedThroughput
	if pt == nil || pt.ReadCapacityUnits == nil || pt.WriteCapacityUnits == nil ||
		*pt.ReadCapacityUnits == 0 || *pt.WriteCapacityUnits == 0 {
		// On-demand tables have no provisioned throughput to honor.
		return nil
	}
	// Index items are two short strings, well below 1 kB, so capacity units
	// translate directly to requests per second.
	rcus := *pt.ReadCapacityUnits
	wcus := *pt.WriteCapacityUnits
	x.getLimiter = rate.NewLimiter(rate.Every(time.Duration(1_000_000/rcus)*time.Microsecond), 1)
	x.putLimiter = rate.NewLimiter(rate.Every(time.Duration(1_000_000/wcus)*time.Microsecond), 1)
	log.WithFields(log.Fields{
		"table": x.table,
		"rcus":  rcus,
		"wcus":  wcus,
	}).Debug("Configured index throttling")
	return nil
}

func (x *DynamoDB) Put(id, key string) error {
	time.Sleep(x.putLimiter.Reserve().Delay())
	_, err := x.ddb.PutItem(&dynamodb.PutItemInput{
		TableName: &x.table,
		Item: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
			"k":  {S: aws.String(key)},
		},
	})
	if err != nil {
		return fmt.Errorf("could not put index entry %q: %w", id, err)
	}
	return nil
}

func (x *DynamoDB) Get(id string) (string, error) {
	time.Sleep(x.getLimiter.Reserve().Delay())
	output, err := x.ddb.GetItem(&dynamodb.GetItemInput{
		TableName: &x.table,
		Key: map[string]*dynamodb.AttributeValue{
			"id": {S: aws.String(id)},
		},
	})
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == dynamodb.ErrCodeResourceNotFoundException {
				return "", fmt.Errorf("%v: %w", e, ErrNotFound)
			}
		}
		return "", err
	}
	if output.Item == nil {
		return "", fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	k, ok := output.Item["k"]
	if !ok || k.S == nil {
		return "", fmt.Errorf("index entry %q has no storage key", id)
	}
	return *k.S, nil
}
