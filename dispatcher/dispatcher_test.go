package dispatcher_test

import (
	"errors"
	"math"

	"github.com/airbusgeo/geocube-s2chips/common"
	"github.com/airbusgeo/geocube-s2chips/dispatcher"
	"github.com/airbusgeo/geocube-s2chips/interface/catalog"
	"github.com/airbusgeo/geocube-s2chips/interface/fetcher"
	"github.com/airbusgeo/geocube-s2chips/selector"
	"github.com/airbusgeo/geocube-s2chips/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func selection(loc, scene, downloadID string, lon, lat float64) common.Selection {
	return common.Selection{
		Candidate:  common.Candidate{LocationID: loc, SceneID: scene, Lon: lon, Lat: lat},
		DownloadID: downloadID,
	}
}

var _ = Describe("Dispatcher", func() {
	var (
		checker  *MokeChecker
		fetch    *MokeFetcher
		primary  catalog.Collection
		fallback catalog.Collection
		err      error
	)

	BeforeEach(func() {
		checker = &MokeChecker{collections: map[string]service.StringSet{
			common.PrimaryCollection:  service.NewStringSet("a", "both"),
			common.FallbackCollection: service.NewStringSet("b", "both"),
		}}
		fetch = &MokeFetcher{}
		primary = catalog.Collection{Name: common.PrimaryCollection, Checker: checker}
		fallback = catalog.NewFallback(catalog.FallbackQuery, common.FallbackCollection, checker, primary)
	})

	Context("resolving the scenes", func() {
		var resolved []common.Resolved
		selections := []common.Selection{
			selection("1", "a", "S2_00000", 3, 45),
			selection("2", "b", "S2_00001", 3, 45),
			selection("3", "both", "S2_00002", 3, 45),
			selection("4", "c", "S2_00003", 3, 45),
			selection("5", "a", "S2_00004", 3, 45),
		}

		It("should give priority to the primary collection", func() {
			resolved, err = dispatcher.Resolve(ctx, selections, primary, fallback)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved).To(HaveLen(5))
			Expect(resolved[0].CatalogPath).To(Equal("COPERNICUS/S2_SR_HARMONIZED/a"))
			Expect(resolved[1].CatalogPath).To(Equal("COPERNICUS/S2_HARMONIZED/b"))
			Expect(resolved[2].CatalogPath).To(Equal("COPERNICUS/S2_SR_HARMONIZED/both"))
			Expect(resolved[4].CatalogPath).To(Equal("COPERNICUS/S2_SR_HARMONIZED/a"))
		})

		It("should resolve unknown scenes when the fallback is queried", func() {
			resolved, err = dispatcher.Resolve(ctx, selections, primary, fallback)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved[3].CatalogPath).To(Equal("UNKNOWN/c"))
		})

		It("should never resolve unknown scenes with the complement fallback", func() {
			fallback = catalog.NewFallback(catalog.FallbackComplement, common.FallbackCollection, checker, primary)
			resolved, err = dispatcher.Resolve(ctx, selections, primary, fallback)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved[1].CatalogPath).To(Equal("COPERNICUS/S2_HARMONIZED/b"))
			Expect(resolved[2].CatalogPath).To(Equal("COPERNICUS/S2_SR_HARMONIZED/both"))
			Expect(resolved[3].CatalogPath).To(Equal("COPERNICUS/S2_HARMONIZED/c"))
			for _, r := range resolved {
				Expect(r.CatalogPath).NotTo(HavePrefix(common.UnknownCollection))
			}
		})

		It("should keep the selections", func() {
			resolved, err = dispatcher.Resolve(ctx, selections, primary, fallback)
			Expect(err).NotTo(HaveOccurred())
			for i, r := range resolved {
				Expect(r.Selection).To(Equal(selections[i]))
			}
		})

		It("should report a permanent error before a temporary one", func() {
			permanent := errors.New("permission denied")
			checker.errors = map[string]error{
				common.PrimaryCollection:  service.MakeTemporary(errors.New("unavailable")),
				common.FallbackCollection: permanent,
			}
			resolved, err = dispatcher.Resolve(ctx, selections, primary, fallback)
			Expect(err).To(MatchError(ContainSubstring("permission denied")))
			Expect(errors.Is(err, permanent)).To(BeTrue())
			Expect(service.Temporary(err)).To(BeFalse())
			Expect(resolved).To(BeNil())
		})

		It("should keep a temporary error temporary", func() {
			checker.errors = map[string]error{common.PrimaryCollection: service.MakeTemporary(errors.New("unavailable"))}
			_, err = dispatcher.Resolve(ctx, selections, primary, fallback)
			Expect(err).To(HaveOccurred())
			Expect(service.Temporary(err)).To(BeTrue())
		})

		It("should not query the collections without selection", func() {
			resolved, err = dispatcher.Resolve(ctx, nil, primary, fallback)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved).To(BeEmpty())
			Expect(checker.calls).To(Equal(0))
		})
	})

	Context("building the requests", func() {
		resolved := []common.Resolved{
			{Selection: selection("1", "a", "S2_00000", 3, 0), CatalogPath: "COPERNICUS/S2_SR_HARMONIZED/a"},
			{Selection: selection("2", "b", "S2_00001", 3, 0), CatalogPath: "COPERNICUS/S2_HARMONIZED/b"},
			{Selection: selection("3", "c", "S2_00002", 3, 0), CatalogPath: "UNKNOWN/c"},
			{Selection: selection("4", "d", "S2_00003", -63, -10), CatalogPath: "COPERNICUS/S2_SR_HARMONIZED/d"},
		}

		It("should only keep the primary collection", func() {
			set, dropped, err := dispatcher.BuildRequests(resolved, common.PrimaryCollection, common.DefaultChipSpec())
			Expect(err).NotTo(HaveOccurred())
			Expect(set.Requests).To(HaveLen(2))
			Expect(dropped).To(HaveLen(2))
			for _, r := range set.Requests {
				Expect(r.Image).To(HavePrefix(common.PrimaryCollection + "/"))
			}
			Expect(dropped[0].CatalogPath).To(Equal("COPERNICUS/S2_HARMONIZED/b"))
			Expect(dropped[1].CatalogPath).To(Equal("UNKNOWN/c"))
		})

		It("should create a centred chip of the primary image", func() {
			set, _, err := dispatcher.BuildRequests(resolved, common.PrimaryCollection, common.DefaultChipSpec())
			Expect(err).NotTo(HaveOccurred())
			r := set.Requests[0]
			Expect(r.ID).To(Equal("S2_00000"))
			Expect(r.Image).To(Equal("COPERNICUS/S2_SR_HARMONIZED/a"))
			Expect(r.Bands).To(Equal(common.DefaultBands))
			Expect(r.RasterTransform.CRS).To(Equal("EPSG:32631"))
			Expect(r.RasterTransform.Width).To(Equal(128))
			Expect(r.RasterTransform.Height).To(Equal(128))
			Expect(r.RasterTransform.GeoTransform.ScaleX).To(Equal(10.))
			Expect(r.RasterTransform.GeoTransform.ScaleY).To(Equal(-10.))
			Expect(r.RasterTransform.GeoTransform.TranslateX).To(BeNumerically("~", 499360, 1e-6))
			Expect(r.RasterTransform.GeoTransform.TranslateY).To(BeNumerically("~", 640, 1e-6))
			Expect(set.Requests[1].RasterTransform.CRS).To(Equal("EPSG:32720"))
		})

		It("should fail with invalid coordinates", func() {
			invalid := []common.Resolved{{Selection: selection("1", "a", "S2_00000", math.NaN(), 0), CatalogPath: "COPERNICUS/S2_SR_HARMONIZED/a"}}
			_, _, err := dispatcher.BuildRequests(invalid, common.PrimaryCollection, common.DefaultChipSpec())
			Expect(err).To(HaveOccurred())
		})
	})

	Context("dispatching", func() {
		It("should not call the fetcher with an empty batch", func() {
			err = dispatcher.Dispatch(ctx, fetch, common.RequestSet{}, fetcher.DefaultOptions())
			Expect(err).NotTo(HaveOccurred())
			Expect(fetch.sets).To(BeEmpty())
		})

		It("should dispatch a batch once with unmodified options", func() {
			opts := fetcher.Options{OutputPath: "out", Workers: 7, MaxDeepLevel: 2}
			set := common.RequestSet{Requests: []common.CubeRequest{{ID: "S2_00000"}, {ID: "S2_00001"}}}
			err = dispatcher.Dispatch(ctx, fetch, set, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetch.sets).To(HaveLen(1))
			Expect(fetch.sets[0]).To(Equal(set))
			Expect(fetch.options[0]).To(Equal(opts))
		})
	})

	Context("selecting and dispatching a candidate table", func() {
		It("should select, resolve and dispatch the best scenes", func() {
			checker.collections[common.PrimaryCollection] = service.NewStringSet("b", "c")
			selections, err := selector.Select([]common.Candidate{
				{LocationID: "1", SceneID: "a", AbsDaysDiff: 5, CloudScore: 0.5, Lon: 3, Lat: 45},
				{LocationID: "1", SceneID: "b", AbsDaysDiff: 2, CloudScore: 0.9, Lon: 3, Lat: 45},
				{LocationID: "2", SceneID: "c", AbsDaysDiff: 1, CloudScore: 0.1, Lon: 4, Lat: 46},
			}, "PFX")
			Expect(err).NotTo(HaveOccurred())

			d := dispatcher.Dispatcher{
				Primary:  primary,
				Fallback: catalog.NewFallback(catalog.FallbackComplement, common.FallbackCollection, checker, primary),
				Fetcher:  fetch,
				Spec:     common.DefaultChipSpec(),
				Options:  fetcher.DefaultOptions(),
			}
			resolved, err := d.Run(ctx, selections)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved).To(HaveLen(2))
			Expect(resolved[0].DownloadID).To(Equal("PFX_00000"))
			Expect(resolved[0].CatalogPath).To(Equal("COPERNICUS/S2_SR_HARMONIZED/b"))
			Expect(resolved[1].DownloadID).To(Equal("PFX_00001"))
			Expect(resolved[1].CatalogPath).To(Equal("COPERNICUS/S2_SR_HARMONIZED/c"))

			Expect(fetch.sets).To(HaveLen(1))
			Expect(fetch.sets[0].Requests).To(HaveLen(2))
			Expect(fetch.sets[0].Requests[0].ID).To(Equal("PFX_00000"))
			Expect(fetch.sets[0].Requests[1].Image).To(Equal("COPERNICUS/S2_SR_HARMONIZED/c"))
			Expect(fetch.options[0]).To(Equal(fetcher.Options{OutputPath: "output_s2", Workers: 4, MaxDeepLevel: 5}))
		})

		It("should not dispatch scenes that are not in the primary collection", func() {
			d := dispatcher.Dispatcher{Primary: primary, Fallback: fallback, Fetcher: fetch, Spec: common.DefaultChipSpec(), Options: fetcher.DefaultOptions()}
			_, err := d.Run(ctx, []common.Selection{selection("1", "b", "S2_00000", 3, 45), selection("2", "c", "S2_00001", 3, 45)})
			Expect(err).NotTo(HaveOccurred())
			Expect(fetch.sets).To(BeEmpty())
		})
	})
})
