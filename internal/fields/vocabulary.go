// Package fields defines the canonical financial field vocabulary and the
// alias tables that map vendor field names onto it.
package fields

import (
	"fmt"

	"github.com/sells-group/filings-cli/internal/model"
)

// Category determines how a field is treated when aggregating periods.
type Category int

const (
	// FlowPL is a profit-and-loss amount that accrues over a period.
	FlowPL Category = iota + 1
	// FlowCF is a cash-flow amount that accrues over a period.
	FlowCF
	// StockBS is a point-in-time balance sheet amount.
	StockBS
)

func (c Category) String() string {
	switch c {
	case FlowPL:
		return "flow-PL"
	case FlowCF:
		return "flow-CF"
	case StockBS:
		return "stock-BS"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// IsFlow reports whether values of the category can be summed across periods.
func (c Category) IsFlow() bool {
	return c == FlowPL || c == FlowCF
}

// Profit and loss fields.
const (
	Revenue                 = "revenue"
	OtherIncome             = "other_income"
	TotalIncome             = "total_income"
	RawMaterialCost         = "raw_material_cost"
	PurchaseStockInTrade    = "purchase_stock_in_trade"
	InventoryChange         = "inventory_change"
	EmployeeCost            = "employee_cost"
	Depreciation            = "depreciation"
	InterestExpense         = "interest_expense"
	OtherExpenses           = "other_expenses"
	TotalExpenses           = "total_expenses"
	OperatingProfit         = "operating_profit"
	ProfitBeforeExceptional = "profit_before_exceptional"
	ExceptionalItems        = "exceptional_items"
	ProfitBeforeTax         = "profit_before_tax"
	TaxExpense              = "tax_expense"
	NetProfit               = "net_profit"
	EPSBasic                = "eps_basic"
	EPSDiluted              = "eps_diluted"
	DividendPerShare        = "dividend_per_share"

	// Derived on FinancialData construction; never produced by alias lookup.
	EBITDA = "ebitda"
	EBIT   = "ebit"
)

// Balance sheet fields.
const (
	ShareCapital               = "share_capital"
	ReservesSurplus            = "reserves_surplus"
	TotalEquity                = "total_equity"
	MinorityInterest           = "minority_interest"
	LongTermBorrowings         = "long_term_borrowings"
	ShortTermBorrowings        = "short_term_borrowings"
	TotalBorrowings            = "total_borrowings"
	OtherNonCurrentLiabilities = "other_non_current_liabilities"
	TotalNonCurrentLiabilities = "total_non_current_liabilities"
	TradePayables              = "trade_payables"
	OtherCurrentLiabilities    = "other_current_liabilities"
	TotalCurrentLiabilities    = "total_current_liabilities"
	TotalLiabilities           = "total_liabilities"
	FixedAssets                = "fixed_assets"
	CWIP                       = "cwip"
	IntangibleAssets           = "intangible_assets"
	Investments                = "investments"
	NonCurrentInvestments      = "non_current_investments"
	CurrentInvestments         = "current_investments"
	TotalNonCurrentAssets      = "total_non_current_assets"
	Inventory                  = "inventory"
	TradeReceivables           = "trade_receivables"
	CashAndEquivalents         = "cash_and_equivalents"
	OtherCurrentAssets         = "other_current_assets"
	TotalCurrentAssets         = "total_current_assets"
	TotalAssets                = "total_assets"
	Goodwill                   = "goodwill"
	DeferredTaxAssets          = "deferred_tax_assets"
	DeferredTaxLiabilities     = "deferred_tax_liabilities"
)

// Cash flow fields.
const (
	CFO              = "cfo"
	CFI              = "cfi"
	CFF              = "cff"
	NetCashFlow      = "net_cash_flow"
	DepreciationInCF = "depreciation_in_cf"
	Capex            = "capex"
	FreeCashFlow     = "free_cash_flow"
)

type definition struct {
	name      string
	category  Category
	statement model.StatementType
	derived   bool
	aliases   []string
}

// vocabulary is the closed canonical field set. Alias lists are matched
// after Key normalization; an alias may appear under one field only.
var vocabulary = []definition{
	// ===== Profit & loss =====
	pl(Revenue,
		"Revenue", "RevenueFromOperations", "Revenue From Operations",
		"IncomeFromOperations", "Income From Operations", "Sales", "Net Sales",
		"Turnover", "Total Revenue From Operations", "GrossRevenue", "Gross Revenue",
		"re_RevenueFromOperations", "RevenueFromOperationsGross",
	),
	pl(OtherIncome,
		"OtherIncome", "Other Income", "re_OtherIncome", "OtherOperatingRevenue",
	),
	pl(TotalIncome,
		"TotalIncome", "Total Income", "TotalRevenueFromOperations", "TotalRevenue",
		"Total Revenue",
	),
	pl(RawMaterialCost,
		"CostOfMaterialsConsumed", "Cost Of Materials Consumed", "RawMaterialCost",
		"Raw Material Cost", "CostOfRawMaterialsConsumed", "re_CostOfMaterialsConsumed",
	),
	pl(PurchaseStockInTrade,
		"PurchaseOfStockInTrade", "Purchase Of Stock In Trade", "PurchasesOfStockInTrade",
		"re_PurchasesOfStockInTrade",
	),
	pl(InventoryChange,
		"ChangesInInventories", "Changes In Inventories", "InventoryChange",
		"ChangesInInventoriesOfFinishedGoods",
		"re_ChangesInInventoriesOfFinishedGoodsWorkInProgressAndStockInTrade",
	),
	pl(EmployeeCost,
		"EmployeeBenefitExpense", "Employee Benefit Expense", "EmployeeCost",
		"Employee Cost", "Staff Cost", "EmployeeBenefitsExpense", "re_EmployeeBenefitExpense",
	),
	pl(Depreciation,
		"DepreciationAndAmortisation", "Depreciation And Amortisation", "Depreciation",
		"DepreciationAndAmortizationExpense", "DepreciationDepletionAndAmortisationExpense",
		"re_DepreciationAndAmortisationExpense",
	),
	pl(InterestExpense,
		"FinanceCosts", "Finance Costs", "InterestExpense", "Interest", "FinanceCost",
		"re_FinanceCosts",
	),
	pl(OtherExpenses,
		"OtherExpenses", "Other Expenses", "re_OtherExpenses",
	),
	pl(TotalExpenses,
		"TotalExpenses", "Total Expenses", "re_TotalExpenses",
	),
	pl(OperatingProfit,
		"OperatingProfit", "Operating Profit", "EBITDA",
		"ProfitBeforeDepreciationInterestAndTax",
	),
	pl(ProfitBeforeExceptional,
		"ProfitBeforeExceptionalItems", "Profit Before Exceptional Items",
		"ProfitBeforeExceptionalItemsAndTax", "re_ProfitBeforeExceptionalItemsAndTax",
	),
	pl(ExceptionalItems,
		"ExceptionalItems", "Exceptional Items", "re_ExceptionalItems",
	),
	pl(ProfitBeforeTax,
		"ProfitBeforeTax", "Profit Before Tax", "PBT", "re_ProfitBeforeTax",
	),
	pl(TaxExpense,
		"TaxExpense", "Tax Expense", "IncomeTaxExpense", "re_TaxExpense", "CurrentTax",
		"DeferredTax",
	),
	pl(NetProfit,
		"ProfitForThePeriod", "Profit For The Period", "NetProfit", "ProfitAfterTax",
		"PAT", "re_ProfitForThePeriod", "ProfitLossForThePeriod",
		"ProfitLossForPeriodFromContinuingOperations",
	),
	pl(EPSBasic,
		"EarningsPerShareBasic", "Basic EPS", "BasicEPS", "EarningsPerEquityShareBasic",
		"re_BasicEPS", "BasicEarningsPerShare",
	),
	pl(EPSDiluted,
		"EarningsPerShareDiluted", "Diluted EPS", "DilutedEPS",
		"EarningsPerEquityShareDiluted", "re_DilutedEPS", "DilutedEarningsPerShare",
	),
	pl(DividendPerShare,
		"DividendPerShare", "DPS",
	),
	derived(EBITDA),
	derived(EBIT),

	// ===== Balance sheet =====
	bs(ShareCapital,
		"ShareCapital", "Share Capital", "Equity Share Capital", "EquityShareCapital",
		"PaidUpCapital", "bs_EquityShareCapital",
	),
	bs(ReservesSurplus,
		"ReservesAndSurplus", "Reserves And Surplus", "Reserves & Surplus", "OtherEquity",
		"Other Equity", "bs_OtherEquity", "RetainedEarnings",
	),
	bs(TotalEquity,
		"TotalEquity", "ShareholdersEquity", "Total Shareholders Equity",
		"Shareholders Funds", "ShareholdersFunds", "bs_TotalEquity",
		"EquityAttributableToOwnersOfParent",
	),
	bs(MinorityInterest,
		"MinorityInterest", "NonControllingInterests", "Non Controlling Interests",
		"bs_NonControllingInterests",
	),
	bs(LongTermBorrowings,
		"LongTermBorrowings", "Long Term Borrowings", "NonCurrentBorrowings",
		"Non Current Borrowings", "bs_NonCurrentBorrowings", "LongTermDebt",
	),
	bs(ShortTermBorrowings,
		"ShortTermBorrowings", "Short Term Borrowings", "CurrentBorrowings",
		"Current Borrowings", "bs_CurrentBorrowings", "ShortTermDebt",
	),
	bs(TotalBorrowings,
		"TotalBorrowings", "Total Debt", "TotalDebt",
	),
	bs(OtherNonCurrentLiabilities,
		"OtherNonCurrentLiabilities", "bs_OtherNonCurrentLiabilities",
	),
	bs(TotalNonCurrentLiabilities,
		"TotalNonCurrentLiabilities", "NonCurrentLiabilities", "Non Current Liabilities",
		"bs_TotalNonCurrentLiabilities",
	),
	bs(TradePayables,
		"TradePayables", "Creditors", "SundryCreditors", "Sundry Creditors",
		"bs_TradePayables",
	),
	bs(OtherCurrentLiabilities,
		"OtherCurrentLiabilities", "bs_OtherCurrentLiabilities",
	),
	bs(TotalCurrentLiabilities,
		"TotalCurrentLiabilities", "CurrentLiabilities", "Current Liabilities",
		"bs_TotalCurrentLiabilities",
	),
	bs(TotalLiabilities,
		"TotalLiabilities", "bs_TotalLiabilities",
	),
	bs(FixedAssets,
		"PropertyPlantAndEquipment", "Property Plant And Equipment", "FixedAssets",
		"TangibleAssets", "bs_PropertyPlantAndEquipment", "NetBlock", "Net Block",
		"GrossBlock",
	),
	bs(CWIP,
		"CapitalWorkInProgress", "Capital Work In Progress", "bs_CapitalWorkInProgress",
	),
	bs(IntangibleAssets,
		"IntangibleAssets", "OtherIntangibleAssets", "Other Intangible Assets",
		"bs_OtherIntangibleAssets",
	),
	bs(Investments,
		"TotalInvestments", "Total Investments",
	),
	bs(NonCurrentInvestments,
		"NonCurrentInvestments", "bs_NonCurrentInvestments", "LongTermInvestments",
		"Long Term Investments",
	),
	bs(CurrentInvestments,
		"CurrentInvestments", "bs_CurrentInvestments", "ShortTermInvestments",
		"Short Term Investments",
	),
	bs(TotalNonCurrentAssets,
		"TotalNonCurrentAssets", "NonCurrentAssets", "Non Current Assets",
		"bs_TotalNonCurrentAssets",
	),
	bs(Inventory,
		"Inventories", "Stock", "bs_Inventories",
	),
	bs(TradeReceivables,
		"TradeReceivables", "Debtors", "SundryDebtors", "Sundry Debtors",
		"bs_TradeReceivables",
	),
	bs(CashAndEquivalents,
		"CashAndCashEquivalents", "Cash And Cash Equivalents", "CashAndBankBalances",
		"Cash And Bank Balances", "bs_CashAndCashEquivalents", "Cash",
	),
	bs(OtherCurrentAssets,
		"OtherCurrentAssets", "bs_OtherCurrentAssets",
	),
	bs(TotalCurrentAssets,
		"TotalCurrentAssets", "CurrentAssets", "Current Assets", "bs_TotalCurrentAssets",
	),
	bs(TotalAssets,
		"TotalAssets", "bs_TotalAssets",
	),
	bs(Goodwill,
		"bs_Goodwill",
	),
	bs(DeferredTaxAssets,
		"DeferredTaxAssets", "DeferredTaxAssetsNet", "bs_DeferredTaxAssets",
	),
	bs(DeferredTaxLiabilities,
		"DeferredTaxLiabilities", "DeferredTaxLiabilitiesNet", "bs_DeferredTaxLiabilities",
	),

	// ===== Cash flow =====
	cf(CFO,
		"CashFlowFromOperatingActivities", "Cash Flow From Operating Activities",
		"NetCashFromOperatingActivities", "cf_CashFlowsFromOperatingActivities",
		"NetCashFlowFromOperatingActivities", "CashFlowsFromUsedInOperatingActivities",
	),
	cf(CFI,
		"CashFlowFromInvestingActivities", "Cash Flow From Investing Activities",
		"NetCashFromInvestingActivities", "cf_CashFlowsFromInvestingActivities",
		"NetCashFlowFromInvestingActivities", "CashFlowsFromUsedInInvestingActivities",
	),
	cf(CFF,
		"CashFlowFromFinancingActivities", "Cash Flow From Financing Activities",
		"NetCashFromFinancingActivities", "cf_CashFlowsFromFinancingActivities",
		"NetCashFlowFromFinancingActivities", "CashFlowsFromUsedInFinancingActivities",
	),
	cf(NetCashFlow,
		"NetCashFlow", "NetIncreaseDecreaseInCashAndCashEquivalents",
		"cf_NetIncreaseDecreaseInCashAndCashEquivalents",
	),
	cf(DepreciationInCF,
		"cf_DepreciationAndAmortisationExpense", "cf_DepreciationAndAmortisation",
	),
	cf(Capex,
		"CapitalExpenditure", "Capital Expenditure", "PurchaseOfPropertyPlantAndEquipment",
		"cf_PaymentsForPurchaseOfPropertyPlantAndEquipment",
	),
	cf(FreeCashFlow,
		"FreeCashFlow", "FCF",
	),
}

func pl(name string, aliases ...string) definition {
	return definition{name: name, category: FlowPL, statement: model.StatementProfitLoss, aliases: aliases}
}

func bs(name string, aliases ...string) definition {
	return definition{name: name, category: StockBS, statement: model.StatementBalanceSheet, aliases: aliases}
}

func cf(name string, aliases ...string) definition {
	return definition{name: name, category: FlowCF, statement: model.StatementCashFlow, aliases: aliases}
}

func derived(name string) definition {
	return definition{name: name, category: FlowPL, statement: model.StatementProfitLoss, derived: true}
}

func init() {
	byName = make(map[string]*definition, len(vocabulary))
	for i := range vocabulary {
		byName[vocabulary[i].name] = &vocabulary[i]
	}
	std = MustNew(nil)
}

var byName map[string]*definition

// IsCanonical reports whether name is a member of the canonical vocabulary.
func IsCanonical(name string) bool {
	_, ok := byName[name]
	return ok
}

// CategoryOf returns the category of a canonical field.
func CategoryOf(name string) (Category, bool) {
	d, ok := byName[name]
	if !ok {
		return 0, false
	}
	return d.category, true
}

// StatementOf returns the statement a canonical field is reported on.
func StatementOf(name string) (model.StatementType, bool) {
	d, ok := byName[name]
	if !ok {
		return 0, false
	}
	return d.statement, true
}

// All returns every canonical field, in vocabulary order.
func All() []string {
	out := make([]string, 0, len(vocabulary))
	for _, d := range vocabulary {
		out = append(out, d.name)
	}
	return out
}

// ForStatement returns the canonical fields reported on one statement.
func ForStatement(st model.StatementType) []string {
	var out []string
	for _, d := range vocabulary {
		if d.statement == st {
			out = append(out, d.name)
		}
	}
	return out
}

// InCategory returns the canonical fields of one category.
func InCategory(c Category) []string {
	var out []string
	for _, d := range vocabulary {
		if d.category == c {
			out = append(out, d.name)
		}
	}
	return out
}
