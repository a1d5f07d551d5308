package logger

// Operation labels carried by pipeline and sync log entries.
const (
	OpBackground          = "BG"
	OpBackgroundFetch     = "BG/FETCH"
	OpBackgroundNormalize = "BG/NORMALIZE"
	OpBackgroundAddToPos  = "BG/ADDPOS"
	OpBackgroundPerf      = "BG/PERF"
	OpFetch               = "FETCH"
	OpNormalize           = "NORMALIZE"
	OpAddToPos            = "ADDPOS"
	OpAuth                = "AUTH"
)
