package clients

import "strings"

// Reasons attached to failed broadcasts and status results.
const (
	ReasonBlockhashNotFound   = "blockhash_not_found"
	ReasonBlockHeightExceeded = "block_height_exceeded"
	ReasonInsufficientFunds   = "insufficient_funds"
	ReasonNonceTooLow         = "nonce_too_low"
	ReasonUnderpriced         = "transaction_underpriced"
	ReasonExecutionReverted   = "execution_reverted"
	ReasonSignatureInvalid    = "signature_invalid"
	ReasonConfirmationTimeout = "confirmation_timed_out"
	ReasonRejected            = "rejected"
)

var broadcastReasons = []struct {
	needle string
	reason string
}{
	{"blockhash not found", ReasonBlockhashNotFound},
	{"block height exceeded", ReasonBlockHeightExceeded},
	{"insufficient funds", ReasonInsufficientFunds},
	{"insufficient lamports", ReasonInsufficientFunds},
	{"nonce too low", ReasonNonceTooLow},
	{"underpriced", ReasonUnderpriced},
	{"signature verification failure", ReasonSignatureInvalid},
	{"invalid sender", ReasonSignatureInvalid},
	{"execution reverted", ReasonExecutionReverted},
}

// ClassifyBroadcastError maps an RPC rejection to one of the Reason constants.
func ClassifyBroadcastError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, r := range broadcastReasons {
		if strings.Contains(msg, r.needle) {
			return r.reason
		}
	}
	return ReasonRejected
}
