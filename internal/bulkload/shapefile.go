package bulkload

import (
	"context"
	"fmt"
	"time"

	shp "github.com/jonas-p/go-shp"
	"go.uber.org/zap"

	"github.com/permitlink/internal/model"
	"github.com/permitlink/internal/pipeline"
	"github.com/permitlink/internal/store"
)

// Loader imports county parcel shapefiles. Counties that publish a
// bulk parcel export make one available as a shapefile download, which
// is far cheaper to ingest than paging the same data out of a query
// endpoint.
type Loader struct {
	properties *store.PropertyStore
	logger     *zap.Logger
}

func NewLoader(properties *store.PropertyStore, logger *zap.Logger) *Loader {
	return &Loader{properties: properties, logger: logger}
}

// LoadParcels streams a parcel shapefile into the property store,
// routing each feature's DBF attributes through the same mapping as
// portal extraction. The feature centroid supplies coordinates when
// the attributes carry none. Returns the number of features imported.
func (l *Loader) LoadParcels(ctx context.Context, path string, j model.Jurisdiction, portal string) (int, error) {
	r, err := shp.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer r.Close()

	fields := r.Fields()
	mapper := pipeline.SourceMapper(j, portal)

	imported := 0
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return imported, err
		}

		idx, shape := r.Shape()
		attrs := make(map[string]any, len(fields))
		for i, f := range fields {
			if v := r.ReadAttribute(idx, i); v != "" {
				attrs[f.String()] = v
			}
		}

		src := mapper(attrs)
		src.ScrapedAt = time.Now().UTC()
		rec := pipeline.PropertyFromSource(src)
		if rec.Latitude == nil || rec.Longitude == nil {
			if lat, lon, ok := centroid(shape); ok {
				rec.Latitude = &lat
				rec.Longitude = &lon
			}
		}

		if err := l.properties.Upsert(ctx, &rec); err != nil {
			return imported, fmt.Errorf("failed to import feature %d: %w", idx, err)
		}
		imported++

		if imported%10000 == 0 {
			l.logger.Info("bulk import progress",
				zap.String("path", path), zap.Int("imported", imported))
		}
	}

	l.logger.Info("bulk import finished",
		zap.String("path", path),
		zap.String("jurisdiction", j.String()),
		zap.Int("imported", imported))
	return imported, nil
}

// centroid averages a shape's vertices. Good enough for locating a
// parcel; this is not a true area-weighted centroid.
func centroid(shape shp.Shape) (lat, lon float64, ok bool) {
	var points []shp.Point
	switch s := shape.(type) {
	case *shp.Point:
		points = []shp.Point{*s}
	case *shp.Polygon:
		points = s.Points
	case *shp.PolyLine:
		points = s.Points
	}
	if len(points) == 0 {
		return 0, 0, false
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return sumY / n, sumX / n, true
}
