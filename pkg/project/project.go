package project

// Project is the collaborator record supplying cost-center resolution when a
// BOQ is created from a project or a sale order.
type Project struct {
	Id                int
	Name              string
	AnalyticAccountId int
	CompanyId         int
}
