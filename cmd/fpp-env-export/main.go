// fpp-env-export snapshots the host environment (timezone and
// coordinates from the FPP settings file) into fpp-env.json for the
// sync daemon. Exit 0 on success, 1 when values were missing, 2 on I/O
// failure.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/robbiet76/fpp-calendar-sync/internal/config"
)

func main() {
	settingsPath := flag.String("settings", "/home/fpp/media/settings", "FPP settings file")
	outPath := flag.String("out", "", "output snapshot path (default <plugin data dir>/fpp-env.json)")
	flag.Parse()

	out := *outPath
	if out == "" {
		out = config.LoadSettings().EnvPath
	}

	env, warn := snapshot(*settingsPath)
	if err := config.WriteEnv(out, env); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", out, err)
		os.Exit(2)
	}

	if warn != "" {
		fmt.Fprintln(os.Stderr, warn)
		os.Exit(1)
	}
}

func snapshot(settingsPath string) (*config.Env, string) {
	env := &config.Env{
		SchemaVersion: config.EnvSchemaVersion,
		Source:        settingsPath,
		Timezone:      "UTC",
	}

	settings, err := config.ReadSettingsFile(settingsPath)
	if err != nil {
		env.Error = err.Error()
		return env, fmt.Sprintf("read settings: %v", err)
	}

	var missing []string

	if tz := settings["TimeZone"]; tz != "" {
		env.Timezone = tz
	} else {
		missing = append(missing, "TimeZone")
	}
	if lat, ok := parseCoord(settings["Latitude"]); ok {
		env.Latitude = lat
	} else {
		missing = append(missing, "Latitude")
	}
	if lon, ok := parseCoord(settings["Longitude"]); ok {
		env.Longitude = lon
	} else {
		missing = append(missing, "Longitude")
	}
	env.RawLocale = settings["Locale"]

	if len(missing) > 0 {
		env.Error = fmt.Sprintf("missing settings: %v", missing)
		return env, env.Error
	}

	env.OK = true
	return env, ""
}

func parseCoord(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
