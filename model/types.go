package model

type ComplianceMode string

const (
	CompliancePermissive ComplianceMode = "permissive"
	ComplianceStrict     ComplianceMode = "strict"
)

type Diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationReport is the outcome of validating one consignment.
type ValidationReport struct {
	ConsignmentID   string         `json:"consignmentId"`
	Type            string         `json:"type"`
	ContractID      string         `json:"contractId"`
	SchemaID        string         `json:"schemaId"`
	Compliance      ComplianceMode `json:"compliance"`
	Validity        string         `json:"validity"`
	Failures        []Diagnostic   `json:"failures"`
	Warnings        []Diagnostic   `json:"warnings"`
	Info            []Diagnostic   `json:"info"`
	UnresolvedTxids []string       `json:"unresolvedTxids"`
	Error           *CodedError    `json:"error,omitempty"`
}

// Witness is a witness and its resolved order.
type Witness struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Height    uint32 `json:"height,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Output is one currently held assignment.
type Output struct {
	Op        string   `json:"op"`
	Type      uint16   `json:"type"`
	No        uint16   `json:"no"`
	Kind      string   `json:"kind"`
	Amount    *uint64  `json:"amount,omitempty"`
	Data      []byte   `json:"data,omitempty"`
	Attach    string   `json:"attach,omitempty"`
	MediaType string   `json:"mediaType,omitempty"`
	Seal      string   `json:"seal"`
	Witness   *Witness `json:"witness,omitempty"`
}

// StateReport is the persisted state of one contract.
type StateReport struct {
	ContractID string   `json:"contractId"`
	SchemaID   string   `json:"schemaId"`
	Rights     []Output `json:"rights"`
	Fungible   []Output `json:"fungible"`
	Data       []Output `json:"data"`
	Attach     []Output `json:"attach"`
}

type WitnessFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// WitnessUpdateReport is the outcome of re-resolving stored witnesses.
type WitnessUpdateReport struct {
	Updated []Witness        `json:"updated"`
	Failed  []WitnessFailure `json:"failed"`
}
