// Package colormap provides the color ramps used to render feature values.
package colormap

import (
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.Color
	AtIndex(i int) color.Color
}

// LinearColormap interpolates linearly between evenly spaced stops.
type LinearColormap struct {
	colors []color.RGBA
}

// At returns the color at position t (0-1).
func (c LinearColormap) At(t float64) color.Color {
	if t <= 0 || t != t {
		return c.colors[0]
	}
	if t >= 1 {
		return c.colors[len(c.colors)-1]
	}

	idx := t * float64(len(c.colors)-1)
	lower := int(idx)
	upper := min(lower+1, len(c.colors)-1)
	return interpolate(c.colors[lower], c.colors[upper], idx-float64(lower))
}

// AtIndex returns color at index i (wraps around).
func (c LinearColormap) AtIndex(i int) color.Color {
	return c.colors[i%len(c.colors)]
}

// Stops returns the number of color stops.
func (c LinearColormap) Stops() int {
	return len(c.colors)
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: 255,
	}
}

// FromHex builds a linear colormap from "#rrggbb" stops.
func FromHex(stops ...string) (LinearColormap, error) {
	if len(stops) == 0 {
		return LinearColormap{}, fmt.Errorf("colormap needs at least one stop")
	}
	colors := make([]color.RGBA, len(stops))
	for i, s := range stops {
		h := strings.TrimPrefix(s, "#")
		if len(h) != 6 {
			return LinearColormap{}, fmt.Errorf("invalid color %q", s)
		}
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return LinearColormap{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
		colors[i] = color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	}
	return LinearColormap{colors: colors}, nil
}

func mustHex(stops ...string) LinearColormap {
	c, err := FromHex(stops...)
	if err != nil {
		panic(err)
	}
	return c
}

// Cool is matplotlib "cool", the viewer's default ramp.
var Cool = mustHex("#00ffff", "#ff00ff")

// Viridis colormap (matplotlib viridis)
var Viridis = LinearColormap{
	colors: []color.RGBA{
		{68, 1, 84, 255},
		{72, 35, 116, 255},
		{64, 67, 135, 255},
		{52, 94, 141, 255},
		{41, 120, 142, 255},
		{32, 144, 140, 255},
		{34, 167, 132, 255},
		{68, 190, 112, 255},
		{121, 209, 81, 255},
		{189, 222, 38, 255},
		{253, 231, 37, 255},
	},
}

// Magma colormap
var Magma = LinearColormap{
	colors: []color.RGBA{
		{0, 0, 4, 255},
		{28, 16, 68, 255},
		{79, 18, 123, 255},
		{129, 37, 129, 255},
		{181, 54, 122, 255},
		{229, 80, 100, 255},
		{251, 135, 97, 255},
		{254, 194, 135, 255},
		{252, 253, 191, 255},
	},
}

// Esri ramps shipped with the viewer.
var (
	EsriRed5         = mustHex("#fee5d9", "#fcae91", "#fb6a4a", "#de2d26", "#a50f15")
	EsriOrange5      = mustHex("#dfe1e6", "#bbbfc9", "#b39e93", "#c4703e", "#8c4a23")
	EsriYellow2      = mustHex("#ffc800", "#e7a300", "#b78300", "#886200", "#584100")
	EsriGreen4       = mustHex("#ffffcc", "#c2e699", "#78c679", "#31a354", "#006837")
	EsriBlue14       = mustHex("#ffec99", "#ccbe6a", "#799a96", "#3d6da2", "#3a4d6b")
	EsriPurple4      = mustHex("#edf8fb", "#b3cde3", "#8c96c6", "#8856a7", "#810f7c")
	EsriMentoneBeach = mustHex("#fee086", "#fc9a59", "#db4a5b", "#995375", "#48385f")
	EsriRetroFlow    = mustHex("#ebe498", "#c4dc66", "#adbf27", "#b6a135", "#d9874c",
		"#d43f70", "#bf00bf", "#881fc5", "#443dbf", "#007fd9")
	EsriHeatmap4 = mustHex("#ffffff", "#ffe3aa", "#ffc655", "#ffaa00", "#ff7100", "#ff3900",
		"#ff0000", "#d50621", "#aa0b43", "#801164", "#551785", "#2b1ca7", "#0022c8")
	EsriBlueRed9     = mustHex("#d7191c", "#fdae61", "#ffffbf", "#abd9e9", "#2c7bb6")
	EsriBlueRed8     = mustHex("#ca0020", "#f4a582", "#f7f7f7", "#92c5de", "#0571b0")
	EsriRedGreen9    = mustHex("#d7191c", "#fdae61", "#ffffbf", "#a6d96a", "#1a9641")
	EsriPurpleRed2   = mustHex("#a53217", "#d2987f", "#fffee6", "#ab84a0", "#570959")
	EsriGreenBrown1  = mustHex("#a6611a", "#dfc27d", "#f5f5f5", "#80cdc1", "#018571")
)

// CategoricalColormap provides distinct colors for categories.
type CategoricalColormap struct {
	colors []color.RGBA
}

// At returns color at position t.
func (c CategoricalColormap) At(t float64) color.Color {
	idx := int(t * float64(len(c.colors)))
	if idx >= len(c.colors) {
		idx = len(c.colors) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return c.colors[idx]
}

// AtIndex returns color at index.
func (c CategoricalColormap) AtIndex(i int) color.Color {
	return c.colors[i%len(c.colors)]
}

// Categorical colormap with 10 distinct colors, used for track coloring.
var Categorical = CategoricalColormap{
	colors: []color.RGBA{
		{31, 119, 180, 255},
		{255, 127, 14, 255},
		{44, 160, 44, 255},
		{214, 39, 40, 255},
		{148, 103, 189, 255},
		{140, 86, 75, 255},
		{227, 119, 194, 255},
		{127, 127, 127, 255},
		{188, 189, 34, 255},
		{23, 190, 207, 255},
	},
}

var registry = map[string]Colormap{
	"cool":               Cool,
	"viridis":            Viridis,
	"magma":              Magma,
	"esri-red-5":         EsriRed5,
	"esri-orange-5":      EsriOrange5,
	"esri-yellow-2":      EsriYellow2,
	"esri-green-4":       EsriGreen4,
	"esri-blue-14":       EsriBlue14,
	"esri-purple-4":      EsriPurple4,
	"esri-mentone-beach": EsriMentoneBeach,
	"esri-retro-flow":    EsriRetroFlow,
	"esri-heatmap-4":     EsriHeatmap4,
	"esri-blue-red-9":    EsriBlueRed9,
	"esri-blue-red-8":    EsriBlueRed8,
	"esri-red-green-9":   EsriRedGreen9,
	"esri-purple-red-2":  EsriPurpleRed2,
	"esri-green-brown-1": EsriGreenBrown1,
	"categorical":        Categorical,
}

// Default is the name of the default colormap.
const Default = "cool"

// ByName looks up a registered colormap; the empty name selects Default.
func ByName(name string) (Colormap, error) {
	if name == "" {
		name = Default
	}
	c, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q", name)
	}
	return c, nil
}

// Names lists the registered colormaps in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
