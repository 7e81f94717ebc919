package screen

// ansiPalette is the fixed 16-color SGR foreground palette (codes 30-37 and
// their bright 90-97 variants). Each bright variant is its base color with the
// zero channels raised to 128, i.e. half the saturation; bright black is
// therefore (128,128,128) and bright white equals white.
var ansiPalette = map[int]Color{
	30: {0, 0, 0},       // black
	31: {255, 0, 0},     // red
	32: {0, 255, 0},     // green
	33: {255, 255, 0},   // yellow
	34: {0, 0, 255},     // blue
	35: {255, 0, 255},   // magenta
	36: {0, 255, 255},   // cyan
	37: {255, 255, 255}, // white
	90: {128, 128, 128}, // bright black
	91: {255, 128, 128}, // bright red
	92: {128, 255, 128}, // bright green
	93: {255, 255, 128}, // bright yellow
	94: {128, 128, 255}, // bright blue
	95: {255, 128, 255}, // bright magenta
	96: {128, 255, 255}, // bright cyan
	97: {255, 255, 255}, // bright white
}
