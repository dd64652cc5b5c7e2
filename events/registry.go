package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/eventsync-go/abi"
	"github.com/0xmhha/eventsync-go/storage"
	"github.com/0xmhha/eventsync-go/types"
)

var (
	// ErrDecode is returned when a receipt log cannot be decoded
	ErrDecode = errors.New("decode failed")

	// ErrPersist is returned when decoded events cannot be stored
	ErrPersist = errors.New("persist failed")
)

// ReceiptDecoder decodes and persists the receipts whose first log carries Topic
type ReceiptDecoder interface {
	Name() string
	Topic() common.Hash
	HandleReceipt(ctx context.Context, receipt *types.Receipt) error
}

// Registry maps event topics to decoders. It is filled at startup and read by the dispatcher.
type Registry struct {
	mu       sync.RWMutex
	decoders map[common.Hash]ReceiptDecoder
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[common.Hash]ReceiptDecoder),
	}
}

// Register adds a decoder. A topic can only be registered once.
func (r *Registry) Register(decoder ReceiptDecoder) error {
	if decoder == nil {
		return fmt.Errorf("decoder cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	topic := decoder.Topic()
	if existing, exists := r.decoders[topic]; exists {
		return fmt.Errorf("decoder %s already registered for topic %s", existing.Name(), topic.Hex())
	}

	r.decoders[topic] = decoder
	return nil
}

// Get returns the decoder for a topic
func (r *Registry) Get(topic common.Hash) (ReceiptDecoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decoder, ok := r.decoders[topic]
	return decoder, ok
}

// Len returns the number of registered decoders
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.decoders)
}

// Names returns the sorted names of registered decoders
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		names = append(names, decoder.Name())
	}
	sort.Strings(names)
	return names
}

// RegisterKnownEvents registers ABI decoders for catalog events by name
func (r *Registry) RegisterKnownEvents(names []string, store storage.EventWriter, logger *zap.Logger) error {
	for _, name := range names {
		event, ok := abi.GetKnownEventByName(name)
		if !ok {
			return fmt.Errorf("unknown event %q", name)
		}

		eventDecoder, err := event.Decoder()
		if err != nil {
			return fmt.Errorf("failed to build decoder for %s: %w", name, err)
		}

		if err := r.Register(NewABIDecoder(name, eventDecoder, store, logger)); err != nil {
			return err
		}
	}
	return nil
}

// RegisterABI registers a decoder for eventName of a custom ABI.
// An empty eventName selects the only event of the ABI.
func (r *Registry) RegisterABI(name, abiJSON, eventName string, store storage.EventWriter, logger *zap.Logger) error {
	eventDecoder, err := abi.NewEventDecoder(abiJSON, eventName)
	if err != nil {
		return fmt.Errorf("failed to build decoder %s: %w", name, err)
	}
	if name == "" {
		name = eventDecoder.Name()
	}
	return r.Register(NewABIDecoder(name, eventDecoder, store, logger))
}
