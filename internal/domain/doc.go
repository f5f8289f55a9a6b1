// Package domain models storm events aggregated from multiple independent
// weather data sources.
//
// # Data Sources
//
// Events arrive through three adapters with very different shapes:
//
//   - A commercial hail catalog (marker-based impact-date lookups). Hail
//     sizes are reported in inches; records are uncertified estimates from
//     the provider's radar model.
//   - The NOAA Storm Events archive (bulk gzip CSV files, one per year,
//     published at https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles/).
//     These are the only certified records in the system.
//   - The National Weather Service alerts API (real-time warnings and
//     watches, GeoJSON features).
//
// Each adapter normalizes its raw payload into [StormEvent] at ingestion.
// Downstream code (clustering, scoring, transport) only ever sees the
// canonical form.
//
// # Conventions
//
// Dates are normalized to US Eastern time regardless of source timezone,
// matching the convention of the NOAA archive's BEGIN_DATE_TIME column for
// east-coast canvassing territories.
//
// Magnitude units vary by event type: inches of hail diameter for hail,
// miles per hour for wind. Tornado reports carry no magnitude here (the
// archive's EF scale is not comparable) and are always treated as severe.
//
// Severity classification:
//
//	Hail:  <1.0" minor | <2.0" moderate | ≥2.0" severe
//	Wind:  <50 mph minor | <75 mph moderate | ≥75 mph severe
//
// Severity is derived exactly once, at normalization, by [DeriveSeverity].
// It is never recomputed downstream; recomputing it is idempotent.
//
// # ID Generation
//
// Event IDs are deterministic SHA-256 hashes of source|type|lat|lon|time.
// Reprocessing the same source record always produces the same ID, so
// merged multi-source result sets can be deduplicated without coordination.
// See [NewEventID].
package domain
