package importer

import (
	"fmt"
	"io"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

// ParseOFX reads an OFX bank statement download into raw lines. Transaction
// amounts are signed from the bank's perspective, so negative amounts become
// debits and positive ones credits. The FITID lands in the reference field,
// which gives the matcher a strong textual anchor when the ledger carries the
// same identifier.
func ParseOFX(r io.Reader) ([]domain.RawLine, error) {
	response, err := ofxgo.ParseResponse(r)
	if err != nil {
		return nil, fmt.Errorf("parse ofx: %s: %w", err, domain.ErrValidation)
	}

	var lines []domain.RawLine
	for _, message := range append(response.Bank, response.CreditCard...) {
		var transactions []ofxgo.Transaction
		if b, ok := message.(*ofxgo.StatementResponse); ok && b.BankTranList != nil {
			transactions = b.BankTranList.Transactions
		} else if cc, ok := message.(*ofxgo.CCStatementResponse); ok && cc.BankTranList != nil {
			transactions = cc.BankTranList.Transactions
		} else {
			continue
		}

		for _, transaction := range transactions {
			amount, err := decimal.NewFromString(transaction.TrnAmt.String())
			if err != nil {
				return nil, fmt.Errorf("parse ofx: bad amount %q: %w", transaction.TrnAmt.String(), domain.ErrValidation)
			}

			line := domain.RawLine{
				LineDate:    transaction.DtPosted.Time,
				Description: string(transaction.Name + transaction.Memo),
				Reference:   string(transaction.FiTID),
			}
			if amount.IsNegative() {
				line.Debit = amount.Abs()
			} else {
				line.Credit = amount
			}

			lines = append(lines, line)
		}
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("parse ofx: no bank transactions in file: %w", domain.ErrValidation)
	}
	return lines, nil
}
