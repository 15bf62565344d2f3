package domain

// Invoice lifecycle statuses.
const (
	StatusDraft      = "RASCUNHO"
	StatusPending    = "PENDENTE"
	StatusAuthorized = "AUTORIZADA"
	StatusRejected   = "REJEITADA"
	StatusCanceled   = "CANCELADA"
	StatusVoided     = "INUTILIZADA"
	StatusDenied     = "DENEGADA"
)

// ActiveStatuses block a new invoice for the same order and model.
var ActiveStatuses = []string{StatusDraft, StatusPending, StatusAuthorized}

// Log actions.
const (
	ActionGenerate   = "GENERATE"
	ActionSign       = "SIGN"
	ActionTransmit   = "TRANSMIT"
	ActionQuery      = "QUERY"
	ActionCancel     = "CANCEL"
	ActionVoid       = "VOID"
	ActionCorrection = "CORRECTION"
	ActionDANFE      = "DANFE"
)

// Log results.
const (
	ResultSuccess = "SUCCESS"
	ResultError   = "ERROR"
	ResultWarning = "WARNING"
)

// Event types registered against SEFAZ.
const (
	EventCancel     = "110111"
	EventCorrection = "110110"
	EventVoid       = "110112"
)
