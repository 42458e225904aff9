package costar

// PrefSnapshot is an immutable copy of the user preferences handed to
// template binding and formatting.
type PrefSnapshot struct {
	Clock24h   bool
	Fahrenheit bool
	Miles      bool
}

// Prefs holds the user-facing unit and clock preferences, persisted in
// the KV store under the "settings" namespace.
type Prefs struct {
	Clock24h     bool
	Fahrenheit   bool
	Miles        bool
	ADSBRadiusNm int

	store *KVStore
}

const prefsNs = "settings"

// LoadPrefs reads preferences, falling back to the firmware defaults:
// 12-hour clock, Fahrenheit, miles, 40 nm ADS-B radius.
func LoadPrefs(store *KVStore) *Prefs {
	p := &Prefs{
		Clock24h:     false,
		Fahrenheit:   true,
		Miles:        true,
		ADSBRadiusNm: 40,
		store:        store,
	}
	if store != nil {
		p.Clock24h = store.GetBool(prefsNs, "clock24", p.Clock24h)
		p.Fahrenheit = store.GetBool(prefsNs, "temp_f", p.Fahrenheit)
		p.Miles = store.GetBool(prefsNs, "miles", p.Miles)
		p.ADSBRadiusNm = store.GetInt(prefsNs, "adsb_radius", p.ADSBRadiusNm)
	}
	return p
}

// Save writes the preferences back to the store.
func (p *Prefs) Save() error {
	if p.store == nil {
		return nil
	}
	if err := p.store.PutBool(prefsNs, "clock24", p.Clock24h); err != nil {
		return err
	}
	if err := p.store.PutBool(prefsNs, "temp_f", p.Fahrenheit); err != nil {
		return err
	}
	if err := p.store.PutBool(prefsNs, "miles", p.Miles); err != nil {
		return err
	}
	return p.store.PutInt(prefsNs, "adsb_radius", p.ADSBRadiusNm)
}

// Setting returns a named widget setting from the store's "settings"
// namespace, for {{setting.<name>}} tokens without a per-widget override.
func (p *Prefs) Setting(name string) string {
	if p.store == nil {
		return ""
	}
	return p.store.GetString(prefsNs, name, "")
}

// Snapshot copies the preference flags for use by a render pass.
func (p *Prefs) Snapshot() PrefSnapshot {
	return PrefSnapshot{
		Clock24h:   p.Clock24h,
		Fahrenheit: p.Fahrenheit,
		Miles:      p.Miles,
	}
}
