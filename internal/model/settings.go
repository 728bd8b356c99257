package model

// BGNPerEUR is the EU-fixed BGN↔EUR conversion rate.
const BGNPerEUR = 1.95583

// Settings is the process-wide singleton configuration row. EURRate is the
// current USD→EUR rate used for new orders; USDRate is the legacy USD→BGN
// rate kept for historical orders.
type Settings struct {
	EURRate         float64  `json:"eurRate"`
	USDRate         float64  `json:"usdRate"`
	FactoryShipping float64  `json:"factoryShipping"`
	Origins         []string `json:"origins"`
	Vendors         []string `json:"vendors"`
	BaseCurrency    string   `json:"baseCurrency"`
	ConversionRate  float64  `json:"conversionRate"`
}

// DefaultSettings returns the seed used when neither tier has a settings row.
func DefaultSettings() *Settings {
	return &Settings{
		EURRate:         0.92,
		USDRate:         1.80,
		FactoryShipping: 1.5,
		Origins:         []string{"OLX", "Bazar", "Facebook", "Viber", "Лично"},
		Vendors:         []string{"Фабрика 1", "Фабрика 2"},
		BaseCurrency:    "EUR",
		ConversionRate:  BGNPerEUR,
	}
}

// Validate checks numeric sanity. Zero rates are rejected because every
// order recompute divides or multiplies by them.
func (s *Settings) Validate() error {
	if s.EURRate <= 0 && s.USDRate <= 0 {
		return errValidation("settings must carry a positive eurRate or usdRate")
	}
	if s.FactoryShipping < 0 {
		return errValidation("factoryShipping must not be negative")
	}
	return nil
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	cp := *s
	cp.Origins = append([]string(nil), s.Origins...)
	cp.Vendors = append([]string(nil), s.Vendors...)
	return &cp
}
