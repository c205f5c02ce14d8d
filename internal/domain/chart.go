package domain

// Well-known chart-of-accounts codes. The seeder creates these accounts and
// the services reach them by code; member capital accounts derive their
// codes from the parent code plus the member code.
const (
	CodeAssets              = "1000"
	CodeCash                = "1010"
	CodeContributedProperty = "1020"
	CodeTaxBasisControl     = "1900"
	CodeLiabilities         = "2000"
	CodePayables            = "2010"
	CodeMembersEquity       = "3000"
	CodeTaxCapital          = "3800"
	CodeNetIncomeSummary    = "3900"
	CodeRevenue             = "4000"
	CodeMemberRevenue       = "4010"
	CodeExpenses            = "5000"
	CodeOperatingExpenses   = "5010"
)

// BookCapitalCode returns the chart code of a member's book capital account.
func BookCapitalCode(memberCode string) string {
	return CodeMembersEquity + "-" + memberCode
}

// TaxCapitalCode returns the chart code of a member's tax capital account.
func TaxCapitalCode(memberCode string) string {
	return CodeTaxCapital + "-" + memberCode
}
