package config

import "reflect"

// Changes lists the top-level sections that differ between two configs.
// Used for reload logging and to decide which components to re-apply.
func Changes(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var out []string
	if oldCfg.Telegram != newCfg.Telegram {
		out = append(out, "telegram")
	}
	if oldCfg.Logging != newCfg.Logging {
		out = append(out, "logging")
	}
	if oldCfg.Reminders != newCfg.Reminders {
		out = append(out, "reminders")
	}
	if oldCfg.Bank != newCfg.Bank {
		out = append(out, "bank")
	}
	if !reflect.DeepEqual(oldCfg.Checks, newCfg.Checks) {
		out = append(out, "checks")
	}
	if oldCfg.Notifier != newCfg.Notifier {
		out = append(out, "notifier")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		out = append(out, "storage")
	}
	return out
}

// Has reports whether section is in changes.
func Has(changes []string, section string) bool {
	for _, c := range changes {
		if c == section {
			return true
		}
	}
	return false
}
