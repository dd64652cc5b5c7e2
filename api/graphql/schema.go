package graphql

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/0xmhha/eventsync-go/storage"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

var (
	// Block heights exceed GraphQL Int, so they travel as decimal strings
	bigIntType = graphql.String

	eventArgType = graphql.NewObject(graphql.ObjectConfig{
		Name: "EventArg",
		Fields: graphql.Fields{
			"name":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"value": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	eventType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Event",
		Fields: graphql.Fields{
			"contract":    &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"event":       &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"signature":   &graphql.Field{Type: graphql.String},
			"blockNumber": &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"txHash":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"txIndex":     &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"logIndex":    &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"args":        &graphql.Field{Type: graphql.NewList(graphql.NewNonNull(eventArgType))},
		},
	})
)

// Schema holds the GraphQL schema over decoded events
type Schema struct {
	schema graphql.Schema
	reader storage.EventReader
	logger *zap.Logger
}

// NewSchema creates a new GraphQL schema
func NewSchema(reader storage.EventReader, logger *zap.Logger) (*Schema, error) {
	if reader == nil {
		return nil, errors.New("event reader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Schema{
		reader: reader,
		logger: logger,
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"event": &graphql.Field{
				Type: eventType,
				Args: graphql.FieldConfigArgument{
					"blockNumber": &graphql.ArgumentConfig{Type: graphql.NewNonNull(bigIntType)},
					"txIndex":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"logIndex":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: s.resolveEvent,
			},
			"eventsByBlock": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(eventType))),
				Args: graphql.FieldConfigArgument{
					"blockNumber": &graphql.ArgumentConfig{Type: graphql.NewNonNull(bigIntType)},
					"contract":    &graphql.ArgumentConfig{Type: graphql.String},
					"event":       &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: s.resolveEventsByBlock,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	if err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	s.schema = schema
	return s, nil
}

func (s *Schema) resolveEvent(p graphql.ResolveParams) (interface{}, error) {
	number, err := parseBlockNumber(p.Args["blockNumber"])
	if err != nil {
		return nil, err
	}
	txIndex, _ := p.Args["txIndex"].(int)
	logIndex, _ := p.Args["logIndex"].(int)
	if txIndex < 0 || logIndex < 0 {
		return nil, errors.New("indexes cannot be negative")
	}

	record, err := s.reader.GetEvent(p.Context, number, uint64(txIndex), uint(logIndex))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to get event",
			zap.Uint64("block", number),
			zap.Int("tx_index", txIndex),
			zap.Int("log_index", logIndex),
			zap.Error(err))
		return nil, err
	}
	return eventToMap(record), nil
}

func (s *Schema) resolveEventsByBlock(p graphql.ResolveParams) (interface{}, error) {
	number, err := parseBlockNumber(p.Args["blockNumber"])
	if err != nil {
		return nil, err
	}
	contract, _ := p.Args["contract"].(string)
	eventName, _ := p.Args["event"].(string)

	records, err := s.reader.GetEventsByBlock(p.Context, number)
	if err != nil {
		s.logger.Error("failed to get events", zap.Uint64("block", number), zap.Error(err))
		return nil, err
	}

	result := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		if contract != "" && !strings.EqualFold(record.Contract, contract) {
			continue
		}
		if eventName != "" && record.Event != eventName {
			continue
		}
		result = append(result, eventToMap(record))
	}
	return result, nil
}

func parseBlockNumber(arg interface{}) (uint64, error) {
	str, ok := arg.(string)
	if !ok {
		return 0, errors.New("invalid block number")
	}
	number, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block number format: %w", err)
	}
	return number, nil
}

func eventToMap(record *storage.EventRecord) map[string]interface{} {
	names := make([]string, 0, len(record.Args))
	for name := range record.Args {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		args = append(args, map[string]interface{}{
			"name":  name,
			"value": record.Args[name],
		})
	}

	return map[string]interface{}{
		"contract":    record.Contract,
		"event":       record.Event,
		"signature":   record.Signature,
		"blockNumber": strconv.FormatUint(record.BlockNumber, 10),
		"txHash":      record.TxHash,
		"txIndex":     int(record.TxIndex),
		"logIndex":    int(record.LogIndex),
		"args":        args,
	}
}
