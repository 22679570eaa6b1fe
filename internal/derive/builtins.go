package derive

import "math"

// Builtins returns the standard financial-variable definitions. Input names
// follow the canonical research shorthand: prc (price), shares, assets, ni
// (net income), seq (stockholders' equity), ceq (common equity), dlt/dlc
// (long-term/current debt), che (cash), dp (depreciation), capx, xrd, oibdp
// (operating income before depreciation), xint (interest), txt (taxes).
// Prices use abs() because vendors store bid/ask midpoints as negatives.
func Builtins() []Definition {
	ratio := func(num, den float64) (float64, bool) {
		if den == 0 {
			return 0, false
		}
		return num / den, true
	}

	return []Definition{
		{
			Name:     "market_cap",
			Inputs:   []string{"prc", "shares"},
			Citation: "Price x shares outstanding; Chung & Pruitt (1994, FAJ)",
			Compute: func(in map[string]float64) (float64, bool) {
				return math.Abs(in["prc"]) * in["shares"], true
			},
		},
		{
			Name:     "total_debt",
			Inputs:   []string{"dlt", "dlc"},
			Citation: "Long-term plus current debt; Frank & Goyal (2009, FM)",
			Compute: func(in map[string]float64) (float64, bool) {
				return in["dlt"] + in["dlc"], true
			},
		},
		{
			Name:     "leverage",
			Inputs:   []string{"total_debt", "assets"},
			Citation: "Book leverage: total debt / assets; Rajan & Zingales (1995, JF)",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["total_debt"], in["assets"])
			},
		},
		{
			Name:     "debt_to_equity",
			Inputs:   []string{"total_debt", "seq"},
			Citation: "Total debt / stockholders' equity",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["total_debt"], in["seq"])
			},
		},
		{
			Name:     "roa",
			Inputs:   []string{"ni", "assets"},
			Citation: "Net income / assets; DuPont decomposition",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["ni"], in["assets"])
			},
		},
		{
			Name:     "roe",
			Inputs:   []string{"ni", "seq"},
			Citation: "Net income / book equity",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["ni"], in["seq"])
			},
		},
		{
			Name:     "eps",
			Inputs:   []string{"ni", "shares"},
			Citation: "Net income / shares outstanding",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["ni"], in["shares"])
			},
		},
		{
			Name:     "book_to_market",
			Inputs:   []string{"ceq", "market_cap"},
			Citation: "Book equity / market equity; Fama & French (1992, JF); Davis, Fama & French (2000, JF)",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["ceq"], in["market_cap"])
			},
		},
		{
			Name:     "market_to_book",
			Inputs:   []string{"market_cap", "seq"},
			Citation: "Market equity / book equity",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["market_cap"], in["seq"])
			},
		},
		{
			Name:     "tobins_q",
			Inputs:   []string{"market_cap", "total_debt", "che", "assets"},
			Citation: "(Market equity + total debt - cash) / assets; Kaplan & Zingales (1997, QJE)",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["market_cap"]+in["total_debt"]-in["che"], in["assets"])
			},
		},
		{
			Name:     "enterprise_value",
			Inputs:   []string{"market_cap", "total_debt", "che"},
			Citation: "Market equity + total debt - cash",
			Compute: func(in map[string]float64) (float64, bool) {
				return in["market_cap"] + in["total_debt"] - in["che"], true
			},
		},
		{
			Name:     "ffo",
			Inputs:   []string{"ni", "dp"},
			Citation: "Funds from operations: NI + depreciation; NAREIT definition (gains unavailable)",
			Compute: func(in map[string]float64) (float64, bool) {
				return in["ni"] + in["dp"], true
			},
		},
		{
			Name:     "ffo_per_share",
			Inputs:   []string{"ffo", "shares"},
			Citation: "FFO / shares outstanding; NAREIT",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["ffo"], in["shares"])
			},
		},
		{
			Name:     "pe_ratio",
			Inputs:   []string{"prc", "eps"},
			Citation: "Price / earnings per share",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(math.Abs(in["prc"]), in["eps"])
			},
		},
		{
			Name:     "capex_ratio",
			Inputs:   []string{"capx", "assets"},
			Citation: "Capital expenditures / assets",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["capx"], in["assets"])
			},
		},
		{
			Name:     "rd_intensity",
			Inputs:   []string{"xrd", "assets"},
			Citation: "R&D expense / assets",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["xrd"], in["assets"])
			},
		},
		{
			Name:     "cash_flow_ratio",
			Inputs:   []string{"oibdp", "xint", "txt", "capx", "assets"},
			Citation: "(OIBDP - interest - taxes - capex) / assets",
			Compute: func(in map[string]float64) (float64, bool) {
				return ratio(in["oibdp"]-in["xint"]-in["txt"]-in["capx"], in["assets"])
			},
		},
		{
			Name:     "log_assets",
			Inputs:   []string{"assets"},
			Citation: "ln(assets), the standard size control",
			Compute: func(in map[string]float64) (float64, bool) {
				if in["assets"] <= 0 {
					return 0, false
				}
				return math.Log(in["assets"]), true
			},
		},
	}
}

// BuiltinRegistry returns a registry preloaded with the built-in library.
func BuiltinRegistry() (*Registry, error) {
	return NewRegistry(Builtins()...)
}
