package event

import (
	"convert_invoices/internal/domain"
	"convert_invoices/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvSetFromCurrency Type = iota + 1
	EvSetToCurrency
	EvSetAmount
	EvToggleIDontCare
	EvDebounceElapsed
	EvEstimateResult
	EvDestinationsResult
	EvInvoiceTerms
)

func (t Type) String() string {
	switch t {
	case EvSetFromCurrency:
		return "set_from_currency"
	case EvSetToCurrency:
		return "set_to_currency"
	case EvSetAmount:
		return "set_amount"
	case EvToggleIDontCare:
		return "toggle_i_dont_care"
	case EvDebounceElapsed:
		return "debounce_elapsed"
	case EvEstimateResult:
		return "estimate_result"
	case EvDestinationsResult:
		return "destinations_result"
	case EvInvoiceTerms:
		return "invoice_terms"
	default:
		return "unknown"
	}
}

// Pipeline identifies one of the two debounced network pipelines.
type Pipeline uint8

const (
	PipelineEstimate Pipeline = iota
	PipelineDestinations
)

func (p Pipeline) String() string {
	if p == PipelineDestinations {
		return "destinations"
	}
	return "estimate"
}

// Event is the interface for all controller events.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
}

// BaseEvent contains common fields for all events.
// Seq is stamped by the controller when the event is processed.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

// NewBase stamps the current time.
func NewBase() BaseEvent { return BaseEvent{Ts: quant.Now()} }

// SetFromCurrencyEvent selects the source currency by system name.
type SetFromCurrencyEvent struct {
	BaseEvent
	SystemName string `json:"systemName"`
}

func (e SetFromCurrencyEvent) GetType() Type { return EvSetFromCurrency }

// SetToCurrencyEvent selects the destination; empty clears it.
type SetToCurrencyEvent struct {
	BaseEvent
	SystemName string `json:"systemName"`
}

func (e SetToCurrencyEvent) GetType() Type { return EvSetToCurrency }

// SetAmountEvent carries the raw amount text as typed.
type SetAmountEvent struct {
	BaseEvent
	Amount string `json:"amount"`
}

func (e SetAmountEvent) GetType() Type { return EvSetAmount }

type ToggleIDontCareEvent struct {
	BaseEvent
}

func (e ToggleIDontCareEvent) GetType() Type { return EvToggleIDontCare }

// DebounceElapsedEvent fires when a pipeline's quiet window ends.
// Gen is the generation the timer was armed for.
type DebounceElapsedEvent struct {
	BaseEvent
	Pipeline Pipeline `json:"pipeline"`
	Gen      uint64   `json:"gen"`
}

func (e DebounceElapsedEvent) GetType() Type { return EvDebounceElapsed }

// EstimateResultEvent reports a finished estimate run.
type EstimateResultEvent struct {
	BaseEvent
	Gen   uint64       `json:"gen"`
	Quote domain.Quote `json:"quote"`
	Err   error        `json:"-"`
}

func (e EstimateResultEvent) GetType() Type { return EvEstimateResult }

// DestinationsResultEvent reports a finished destinations run.
type DestinationsResultEvent struct {
	BaseEvent
	Gen        uint64            `json:"gen"`
	Currencies []domain.Currency `json:"currencies"`
	Err        error             `json:"-"`
}

func (e DestinationsResultEvent) GetType() Type { return EvDestinationsResult }

// InvoiceTermsRequestEvent asks the loop for invoice terms built from the
// quote that backs the state at the time the request is processed.
// Reply must be buffered.
type InvoiceTermsRequestEvent struct {
	BaseEvent
	Destination string                 `json:"destination"`
	Reply       chan InvoiceTermsReply `json:"-"`
}

func (e InvoiceTermsRequestEvent) GetType() Type { return EvInvoiceTerms }

type InvoiceTermsReply struct {
	Terms domain.InvoiceTerms
	Err   error
}
