package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/mandor/internal/adapters/geoformat"
	httpAdapter "github.com/jobrunner/mandor/internal/adapters/http"
	"github.com/jobrunner/mandor/internal/domain"
)

func newNormalizeCmd() *cobra.Command {
	var asKML bool

	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize raw coordinates and print the geofence",
		Long: `Reads a raw coordinates payload from a file, or from stdin when no file
or "-" is given, and prints the normalized geofence.

The payload may be a JSON document or a bare delimited string such as
"105.26, -5.42, 105.27, -5.42". A JSON object with a "coordinates" member is
unwrapped first. Empty or unusable input is centered on map.default_center.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening payload: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			center := domain.NewGeoPoint(
				viper.GetFloat64("map.default_center.lat"),
				viper.GetFloat64("map.default_center.lng"),
			)
			if err := center.Validate(); err != nil {
				return fmt.Errorf("map.default_center: %w", err)
			}

			return runNormalize(cmd.OutOrStdout(), in, center, asKML)
		},
	}

	cmd.Flags().BoolVar(&asKML, "kml", false, "print a KML document instead of JSON")
	return cmd
}

// runNormalize normalizes the payload read from r and writes the geofence
// to w.
func runNormalize(w io.Writer, r io.Reader, center domain.GeoPoint, asKML bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}

	g := domain.NewGeofence(domain.Normalize(payloadValue(data)), center)

	if asKML {
		return geoformat.WriteKML(w, &g)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(httpAdapter.NewGeofenceResponse(&g))
}

// payloadValue decodes a JSON payload, unwrapping {"coordinates": ...}.
// Anything that is not JSON is passed on as text.
func payloadValue(data []byte) any {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(trimmed)
	}

	if obj, ok := v.(map[string]any); ok {
		if raw, found := obj["coordinates"]; found {
			return raw
		}
	}
	return v
}
