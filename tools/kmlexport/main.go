// Package main exports aircraft tracks from the state store to KML format.
// KML (Keyhole Markup Language) files can be viewed in Google Earth, Google
// Maps, and other mapping applications.
package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"sbs_tracker/internal/store"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string    `xml:"id,attr"`
	LineStyle LineStyle `xml:"LineStyle"`
}

// LineStyle defines how track lines are displayed.
type LineStyle struct {
	Color string `xml:"color"` // KML color order is aabbggrr
	Width int    `xml:"width"`
}

// Placemark represents one aircraft's track with its metadata.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	LineString   LineString    `xml:"LineString"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// LineString represents an ordered sequence of geographic positions.
type LineString struct {
	Extrude      int    `xml:"extrude"`
	AltitudeMode string `xml:"altitudeMode"`
	Coordinates  string `xml:"coordinates"` // Format: lon,lat,altitude per sample
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

func main() {
	dbPath := flag.String("db", "flights.db", "SQLite database path")
	pgFlag := flag.Bool("postgres", false, "Use PostgreSQL instead of SQLite")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "sbs", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "sbs", "PostgreSQL password")
	pgDB := flag.String("pg-db", "sbs_tracker", "PostgreSQL database")

	hexFilter := flag.String("hex", "", "Export one aircraft only (ICAO hex ident)")
	limit := flag.Int("limit", 1000, "Maximum track samples per aircraft")
	output := flag.String("output", "", "Output KML file (default: stdout)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	var st store.Store
	var err error
	if *pgFlag {
		st, err = store.OpenPostgres(ctx, store.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			Database: *pgDB,
			User:     *pgUser,
			Password: *pgPassword,
		})
	} else {
		st, err = store.OpenSQLite(*dbPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	var aircraft []store.Aircraft
	if *hexFilter != "" {
		a, err := st.GetAircraft(ctx, *hexFilter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying aircraft: %v\n", err)
			os.Exit(1)
		}
		if a == nil {
			fmt.Fprintf(os.Stderr, "No aircraft with hex %s\n", *hexFilter)
			os.Exit(0)
		}
		aircraft = []store.Aircraft{*a}
	} else {
		aircraft, err = st.ListAircraft(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying aircraft: %v\n", err)
			os.Exit(1)
		}
	}

	if len(aircraft) == 0 {
		fmt.Fprintf(os.Stderr, "No aircraft with positions found\n")
		os.Exit(0)
	}

	var placemarks []Placemark
	for _, a := range aircraft {
		samples, err := st.Track(ctx, a.Hex, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying track for %s: %v\n", a.Hex, err)
			os.Exit(1)
		}
		if len(samples) == 0 {
			continue
		}
		placemarks = append(placemarks, trackPlacemark(a, samples))
		if *verbose {
			fmt.Fprintf(os.Stderr, "%s: %d samples\n", a.Hex, len(samples))
		}
	}

	kml := buildKML(placemarks)

	xmlData, err := xml.MarshalIndent(kml, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}
	xmlOutput := xml.Header + string(xmlData)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(xmlOutput), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
		}
	} else {
		fmt.Println(xmlOutput)
	}
}

// trackPlacemark renders one aircraft's history as a KML line.
func trackPlacemark(a store.Aircraft, samples []store.PositionSample) Placemark {
	var coords strings.Builder
	for _, s := range samples {
		alt := 0
		if s.Altitude != nil {
			// KML altitudes are metres; barometric altitude arrives in feet.
			alt = int(float64(*s.Altitude) * 0.3048)
		}
		fmt.Fprintf(&coords, "%.6f,%.6f,%d ", s.Longitude, s.Latitude, alt)
	}

	name := a.Hex
	if a.Callsign != "" {
		name = fmt.Sprintf("%s (%s)", a.Callsign, a.Hex)
	}

	first := samples[0].Timestamp
	last := samples[len(samples)-1].Timestamp
	description := fmt.Sprintf(
		"Samples: %d\nFirst: %s\nLast: %s",
		len(samples),
		first.Format("2006-01-02 15:04:05 UTC"),
		last.Format("2006-01-02 15:04:05 UTC"),
	)

	return Placemark{
		Name:        name,
		Description: description,
		StyleURL:    "#trackStyle",
		LineString: LineString{
			Extrude:      1,
			AltitudeMode: "absolute",
			Coordinates:  strings.TrimSpace(coords.String()),
		},
		ExtendedData: &ExtendedData{
			Data: []Data{
				{Name: "hex", Value: a.Hex},
				{Name: "callsign", Value: a.Callsign},
				{Name: "first_seen", Value: first.Format(time.RFC3339)},
				{Name: "last_seen", Value: last.Format(time.RFC3339)},
			},
		},
	}
}

// buildKML assembles the document around the track placemarks.
func buildKML(placemarks []Placemark) KML {
	return KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        "Aircraft Tracks",
			Description: fmt.Sprintf("Position history from the surveillance feed. Generated %s.", time.Now().Format("2006-01-02 15:04:05")),
			Styles: []Style{
				{
					ID: "trackStyle",
					LineStyle: LineStyle{
						Color: "ff0000ff",
						Width: 2,
					},
				},
			},
			Placemarks: placemarks,
		},
	}
}
