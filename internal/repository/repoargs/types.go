package repoargs

type RepositoryName string

const (
	OrderRepoName   RepositoryName = "order"
	RefundRepoName  RepositoryName = "refund"
	PayoutRepoName  RepositoryName = "payout"
	ExpenseRepoName RepositoryName = "expense"
)
