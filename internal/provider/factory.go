package provider

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/do/v2"
	"github.com/willie68/go_tilefeed/configs"
	"github.com/willie68/go_tilefeed/internal/logging"
)

// Factory creates the configured providers and registers them as named
// services in the injector
type Factory struct {
	log     *slog.Logger
	configs ConfigMap
	tiles   map[string]TileProvider
	pois    map[string]PoiProvider
	inj     do.Injector
}

type providerConfig interface {
	GetProviderConfig() ConfigMap
}

func Init(inj do.Injector) {
	f, err := NewFactory(inj, do.MustInvokeAs[providerConfig](inj).GetProviderConfig())
	if err != nil {
		panic(err)
	}
	do.ProvideValue(inj, f)
}

// NewFactory creates all providers of the config map. Fallbacks are created
// last, the mbtiles provider looks them up lazily.
func NewFactory(inj do.Injector, configs ConfigMap) (*Factory, error) {
	sf := &Factory{
		log:     logging.New("factory"),
		configs: configs,
		tiles:   make(map[string]TileProvider),
		pois:    make(map[string]PoiProvider),
		inj:     inj,
	}
	names := make([]string, 0, len(configs))
	for n := range configs {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, sname := range names {
		if err := sf.create(sname, configs[sname]); err != nil {
			sf.Close()
			return nil, err
		}
	}
	return sf, nil
}

func (f *Factory) create(sname string, config Config) error {
	var (
		tp  TileProvider
		pp  PoiProvider
		err error
	)
	switch strings.ToLower(config.Type) {
	case "wms":
		tp, err = NewWMSProvider(sname, config)
	case "tms":
		tp = NewTMSProvider(sname, config, true)
	case "xyz":
		tp = NewTMSProvider(sname, config, false)
	case "mbtiles":
		tp, err = NewMBTilesProvider(sname, config, f.inj)
	case "asset":
		tp = NewAssetProvider(sname, config)
	case "poi-http":
		pp = NewPoiHTTPProvider(sname, config)
	case "poi-file":
		pp = NewPoiFileProvider(sname, config)
	case "poi-kv":
		pp, err = NewPoiKVProvider(sname, config)
	default:
		panic(fmt.Sprintf("unknown provider type: %s", config.Type))
	}
	if err != nil {
		return errors.Wrapf(err, "creating provider %s", sname)
	}
	if tp != nil {
		do.ProvideNamedValue(f.inj, sname, tp)
		f.tiles[sname] = tp
	}
	if pp != nil {
		do.ProvideNamedValue(f.inj, sname, pp)
		f.pois[sname] = pp
	}
	f.log.Info("provider created", "provider", sname, "type", config.Type)
	return nil
}

func (f *Factory) HasProvider(providerName string) bool {
	_, ok := f.configs[providerName]
	return ok
}

// IsPrefetchable false for tile servers whose usage policy forbids bulk downloads
func (f *Factory) IsPrefetchable(providerName string) bool {
	config, ok := f.configs[providerName]
	if !ok {
		return false
	}
	for _, b := range configs.PrefetchBlacklist() {
		if strings.Contains(strings.ToLower(config.URL), strings.ToLower(b)) {
			return false
		}
	}
	return true
}

func (f *Factory) TileProvider(name string) (TileProvider, error) {
	if _, ok := f.tiles[name]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "tile provider %s", name)
	}
	return do.InvokeNamed[TileProvider](f.inj, name)
}

func (f *Factory) PoiProvider(name string) (PoiProvider, error) {
	if _, ok := f.pois[name]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "poi provider %s", name)
	}
	return do.InvokeNamed[PoiProvider](f.inj, name)
}

// Names all provider names, sorted
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.configs))
	for n := range f.tiles {
		names = append(names, n)
	}
	for n := range f.pois {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Close closes all providers
func (f *Factory) Close() error {
	var first error
	for n, p := range f.tiles {
		if err := p.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "closing %s", n)
		}
	}
	for n, p := range f.pois {
		if err := p.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "closing %s", n)
		}
	}
	return first
}
