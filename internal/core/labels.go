// Package core defines core types.
package core

// Capture field names following the {protocol}.{field} convention of the
// capture tool's dissector output.
const (
	FieldFrameNumber       = "frame.number"
	FieldFrameTimeRelative = "frame.time_relative"
	FieldFrameTimeEpoch    = "frame.time_epoch"

	FieldSLLPacketType = "sll.pkttype"

	FieldTCPPayload = "tcp.payload"
	FieldTCPSrcPort = "tcp.srcport"
	FieldTCPDstPort = "tcp.dstport"

	// NGAP
	FieldNGAPRanUeId       = "ngap.RAN_UE_NGAP_ID"
	FieldNGAPAmfUeId       = "ngap.AMF_UE_NGAP_ID"
	FieldNGAPProcedureCode = "ngap.procedureCode"
	FieldNGAPInitiating    = "ngap.initiatingMessage_element"
	FieldNGAPSuccessful    = "ngap.successfulOutcome_element"
	FieldNGAPUnsuccessful  = "ngap.unsuccessfulOutcome_element"
)

// Protocol layer names.
const (
	LayerFrame = "frame"
	LayerSLL   = "sll"
	LayerTCP   = "tcp"
	LayerNGAP  = "ngap"
)
