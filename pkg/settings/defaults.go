package settings

// Defaults returns the canonical settings schema with its default values.
// Boolean entries are checkbox settings.
func Defaults() *Map {
	return MapOf(
		"storeName", "My Store",
		"storeAddress", "",
		"storePhone", "",
		"storeEmail", "",
		"gstNumber", "",
		"currencySymbol", "₹",
		"defaultGSTRate", float64(5),
		"taxInclusive", false,
		"roundOffTotals", true,
		"receiptHeader", "",
		"receiptFooter", "Thank you for shopping with us!",
		"receiptWidth", float64(80),
		"showSavings", true,
		"showGSTBreakdown", true,
		"printStoreLogo", false,
		"autoPrint", false,
		"billPrefix", "INV",
		"lowStockThreshold", float64(10),
		"language", "en",
		"theme", "light",
	)
}

// Reconcile merges persisted settings over defaults. The result keeps the
// order of defaults; persisted values win per key and unknown persisted keys
// are appended unchanged.
func Reconcile(defaults, persisted *Map) *Map {
	return defaults.Overlay(persisted)
}

// MergeSubmission applies a submitted form on top of existing settings.
// Keys absent from the submission keep their existing value, except boolean
// schema keys: an unchecked checkbox is not submitted, so it becomes false.
func MergeSubmission(defaults, existing, submitted *Map) *Map {
	merged := existing.Overlay(submitted)
	for _, key := range defaults.Keys() {
		v, _ := defaults.Get(key)
		if _, isBool := v.(bool); isBool && !submitted.Has(key) {
			merged.Set(key, false)
		}
	}
	return merged
}
