package arcgis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/permitlink/internal/metrics"
	"github.com/permitlink/internal/model"
)

// Discoverer walks a portal's folder/service/layer hierarchy and
// returns the queryable layers whose names suggest relevant content.
type Discoverer struct {
	client   *Client
	keywords []string
	workers  int
	logger   *zap.Logger
}

// NewDiscoverer builds a discoverer over client. Keywords are matched
// case-insensitively as substrings of service and layer names.
func NewDiscoverer(client *Client, keywords []string, workers int, logger *zap.Logger) *Discoverer {
	if workers <= 0 {
		workers = 1
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Discoverer{
		client:   client,
		keywords: lowered,
		workers:  workers,
		logger:   logger,
	}
}

// Discover walks root's directory: the root listing plus one level of
// subfolders, then every service's layer list, then a count-only query
// for each matching layer. Layers with a zero reported count are
// dropped. A failed fetch at any node skips that branch and never
// aborts the walk; only a failure to list the root itself is an error.
func (d *Discoverer) Discover(ctx context.Context, root string) ([]model.DiscoveredLayer, error) {
	root = strings.TrimRight(root, "/")

	var rootCat catalog
	if err := d.client.getJSON(ctx, root, nil, &rootCat); err != nil {
		return nil, fmt.Errorf("failed to list root directory: %w", err)
	}
	if err := embeddedError(root, rootCat.Error); err != nil {
		return nil, fmt.Errorf("failed to list root directory: %w", err)
	}

	services := rootCat.Services

	// One level of subfolders, as portals conventionally nest county
	// services a single folder deep.
	for _, folder := range rootCat.Folders {
		var sub catalog
		folderURL := root + "/" + folder
		if err := d.client.getJSON(ctx, folderURL, nil, &sub); err != nil {
			d.logger.Warn("skipping folder", zap.String("folder", folder), zap.Error(err))
			metrics.DiscoveryNodeFailures.Inc()
			continue
		}
		if err := embeddedError(folderURL, sub.Error); err != nil {
			d.logger.Warn("skipping folder", zap.String("folder", folder), zap.Error(err))
			metrics.DiscoveryNodeFailures.Inc()
			continue
		}
		services = append(services, sub.Services...)
	}

	// Inspect services with a bounded worker pool; remote fair-use
	// limits rule out unbounded parallelism.
	type task struct{ svc serviceRef }
	tasks := make(chan task)
	var mu sync.Mutex
	var layers []model.DiscoveredLayer

	var wg sync.WaitGroup
	for w := 0; w < d.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				found := d.inspectService(ctx, root, t.svc)
				if len(found) > 0 {
					mu.Lock()
					layers = append(layers, found...)
					mu.Unlock()
				}
			}
		}()
	}

	for _, svc := range services {
		select {
		case <-ctx.Done():
			// Drain: stop feeding, let workers finish in-flight nodes.
		case tasks <- task{svc: svc}:
			continue
		}
		break
	}
	close(tasks)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return layers, err
	}

	metrics.LayersDiscovered.Add(float64(len(layers)))
	d.logger.Info("discovery complete",
		zap.Int("services", len(services)),
		zap.Int("layers", len(layers)))
	return layers, nil
}

// inspectService lists one service's layers and count-queries the
// relevant ones. Failures skip the service or layer.
func (d *Discoverer) inspectService(ctx context.Context, root string, svc serviceRef) []model.DiscoveredLayer {
	serviceURL := fmt.Sprintf("%s/%s/%s", root, svc.Name, svc.Type)

	var info serviceInfo
	if err := d.client.getJSON(ctx, serviceURL, nil, &info); err != nil {
		d.logger.Warn("skipping service", zap.String("service", svc.Name), zap.Error(err))
		metrics.DiscoveryNodeFailures.Inc()
		return nil
	}
	if err := embeddedError(serviceURL, info.Error); err != nil {
		d.logger.Warn("skipping service", zap.String("service", svc.Name), zap.Error(err))
		metrics.DiscoveryNodeFailures.Inc()
		return nil
	}

	serviceMatches := d.matches(svc.Name)

	var found []model.DiscoveredLayer
	for _, layer := range info.Layers {
		if !serviceMatches && !d.matches(layer.Name) {
			continue
		}

		queryURL := fmt.Sprintf("%s/%d/query", serviceURL, layer.ID)
		count, err := d.client.Count(ctx, queryURL)
		if err != nil {
			d.logger.Warn("skipping layer",
				zap.String("service", svc.Name),
				zap.String("layer", layer.Name),
				zap.Error(err))
			metrics.DiscoveryNodeFailures.Inc()
			continue
		}
		if count == 0 {
			continue
		}

		found = append(found, model.DiscoveredLayer{
			ServiceName: svc.Name,
			LayerName:   layer.Name,
			LayerID:     layer.ID,
			QueryURL:    queryURL,
			RecordCount: count,
		})
	}
	return found
}

// matches reports whether name contains any configured keyword.
func (d *Discoverer) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range d.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
