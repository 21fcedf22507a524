package wallet

const (
	operationRecord          = "record"
	operationDebit           = "debit"
	operationCredit          = "credit"
	operationBeginDeposit    = "begin_deposit"
	operationCompleteDeposit = "complete_deposit"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultHistoryLimit bounds WalletWithTransactions when the caller
	// passes a non-positive limit.
	DefaultHistoryLimit = 50
)
