package contentstream

// Operator is the closed set of content stream operators. Mnemonics outside
// the set parse as OpUnknown and keep their token in Operation.Mnemonic.
type Operator int

const (
	OpUnknown Operator = iota

	// general graphics state
	OpSetLineWidth
	OpSetLineCap
	OpSetLineJoin
	OpSetMiterLimit
	OpSetDash
	OpSetRenderingIntent
	OpSetFlatness
	OpSetExtGState

	// special graphics state
	OpSave
	OpRestore
	OpConcat

	// path construction
	OpMoveTo
	OpLineTo
	OpCurveTo
	OpCurveToV
	OpCurveToY
	OpClosePath
	OpRectangle

	// path painting
	OpStroke
	OpCloseStroke
	OpFill
	OpFillCompat
	OpFillEvenOdd
	OpFillStroke
	OpFillStrokeEvenOdd
	OpCloseFillStroke
	OpCloseFillStrokeEvenOdd
	OpEndPath

	// clipping
	OpClip
	OpClipEvenOdd

	// text objects
	OpBeginText
	OpEndText

	// text state
	OpSetCharSpacing
	OpSetWordSpacing
	OpSetHorizScaling
	OpSetLeading
	OpSetFont
	OpSetTextRender
	OpSetTextRise

	// text positioning
	OpMoveText
	OpMoveTextLeading
	OpSetTextMatrix
	OpNextLine

	// text showing
	OpShowText
	OpShowTextArray
	OpNextLineShowText
	OpNextLineShowTextSpaced

	// type 3 fonts
	OpSetCharWidth
	OpSetCacheDevice

	// color
	OpSetStrokeColorSpace
	OpSetFillColorSpace
	OpSetStrokeColor
	OpSetStrokeColorN
	OpSetFillColor
	OpSetFillColorN
	OpSetStrokeGray
	OpSetFillGray
	OpSetStrokeRGB
	OpSetFillRGB
	OpSetStrokeCMYK
	OpSetFillCMYK

	// shading, inline images, XObjects
	OpShade
	OpBeginImage
	OpImageData
	OpEndImage
	OpXObject

	// marked content
	OpMarkPoint
	OpMarkPointProps
	OpBeginMarked
	OpBeginMarkedProps
	OpEndMarked

	// compatibility
	OpBeginCompat
	OpEndCompat

	opCount
)

// Category groups operators the way the content stream grammar does.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryGeneralState
	CategorySpecialState
	CategoryPathConstruction
	CategoryPathPainting
	CategoryClipping
	CategoryTextObject
	CategoryTextState
	CategoryTextPositioning
	CategoryTextShowing
	CategoryType3
	CategoryColor
	CategoryShading
	CategoryInlineImage
	CategoryXObject
	CategoryMarkedContent
	CategoryCompatibility
)

// variadic marks operators whose operand count depends on context.
const variadic = -1

type opInfo struct {
	mnemonic string
	operands int
	category Category
}

var opTable = [opCount]opInfo{
	OpUnknown: {"", variadic, CategoryUnknown},

	OpSetLineWidth:       {"w", 1, CategoryGeneralState},
	OpSetLineCap:         {"J", 1, CategoryGeneralState},
	OpSetLineJoin:        {"j", 1, CategoryGeneralState},
	OpSetMiterLimit:      {"M", 1, CategoryGeneralState},
	OpSetDash:            {"d", 2, CategoryGeneralState},
	OpSetRenderingIntent: {"ri", 1, CategoryGeneralState},
	OpSetFlatness:        {"i", 1, CategoryGeneralState},
	OpSetExtGState:       {"gs", 1, CategoryGeneralState},

	OpSave:    {"q", 0, CategorySpecialState},
	OpRestore: {"Q", 0, CategorySpecialState},
	OpConcat:  {"cm", 6, CategorySpecialState},

	OpMoveTo:    {"m", 2, CategoryPathConstruction},
	OpLineTo:    {"l", 2, CategoryPathConstruction},
	OpCurveTo:   {"c", 6, CategoryPathConstruction},
	OpCurveToV:  {"v", 4, CategoryPathConstruction},
	OpCurveToY:  {"y", 4, CategoryPathConstruction},
	OpClosePath: {"h", 0, CategoryPathConstruction},
	OpRectangle: {"re", 4, CategoryPathConstruction},

	OpStroke:                 {"S", 0, CategoryPathPainting},
	OpCloseStroke:            {"s", 0, CategoryPathPainting},
	OpFill:                   {"f", 0, CategoryPathPainting},
	OpFillCompat:             {"F", 0, CategoryPathPainting},
	OpFillEvenOdd:            {"f*", 0, CategoryPathPainting},
	OpFillStroke:             {"B", 0, CategoryPathPainting},
	OpFillStrokeEvenOdd:      {"B*", 0, CategoryPathPainting},
	OpCloseFillStroke:        {"b", 0, CategoryPathPainting},
	OpCloseFillStrokeEvenOdd: {"b*", 0, CategoryPathPainting},
	OpEndPath:                {"n", 0, CategoryPathPainting},

	OpClip:        {"W", 0, CategoryClipping},
	OpClipEvenOdd: {"W*", 0, CategoryClipping},

	OpBeginText: {"BT", 0, CategoryTextObject},
	OpEndText:   {"ET", 0, CategoryTextObject},

	OpSetCharSpacing:  {"Tc", 1, CategoryTextState},
	OpSetWordSpacing:  {"Tw", 1, CategoryTextState},
	OpSetHorizScaling: {"Tz", 1, CategoryTextState},
	OpSetLeading:      {"TL", 1, CategoryTextState},
	OpSetFont:         {"Tf", 2, CategoryTextState},
	OpSetTextRender:   {"Tr", 1, CategoryTextState},
	OpSetTextRise:     {"Ts", 1, CategoryTextState},

	OpMoveText:        {"Td", 2, CategoryTextPositioning},
	OpMoveTextLeading: {"TD", 2, CategoryTextPositioning},
	OpSetTextMatrix:   {"Tm", 6, CategoryTextPositioning},
	OpNextLine:        {"T*", 0, CategoryTextPositioning},

	OpShowText:               {"Tj", 1, CategoryTextShowing},
	OpShowTextArray:          {"TJ", 1, CategoryTextShowing},
	OpNextLineShowText:       {"'", 1, CategoryTextShowing},
	OpNextLineShowTextSpaced: {"\"", 3, CategoryTextShowing},

	OpSetCharWidth:   {"d0", 2, CategoryType3},
	OpSetCacheDevice: {"d1", 6, CategoryType3},

	OpSetStrokeColorSpace: {"CS", 1, CategoryColor},
	OpSetFillColorSpace:   {"cs", 1, CategoryColor},
	OpSetStrokeColor:      {"SC", variadic, CategoryColor},
	OpSetStrokeColorN:     {"SCN", variadic, CategoryColor},
	OpSetFillColor:        {"sc", variadic, CategoryColor},
	OpSetFillColorN:       {"scn", variadic, CategoryColor},
	OpSetStrokeGray:       {"G", 1, CategoryColor},
	OpSetFillGray:         {"g", 1, CategoryColor},
	OpSetStrokeRGB:        {"RG", 3, CategoryColor},
	OpSetFillRGB:          {"rg", 3, CategoryColor},
	OpSetStrokeCMYK:       {"K", 4, CategoryColor},
	OpSetFillCMYK:         {"k", 4, CategoryColor},

	OpShade:      {"sh", 1, CategoryShading},
	OpBeginImage: {"BI", 0, CategoryInlineImage},
	OpImageData:  {"ID", 0, CategoryInlineImage},
	OpEndImage:   {"EI", 0, CategoryInlineImage},
	OpXObject:    {"Do", 1, CategoryXObject},

	OpMarkPoint:        {"MP", 1, CategoryMarkedContent},
	OpMarkPointProps:   {"DP", 2, CategoryMarkedContent},
	OpBeginMarked:      {"BMC", 1, CategoryMarkedContent},
	OpBeginMarkedProps: {"BDC", 2, CategoryMarkedContent},
	OpEndMarked:        {"EMC", 0, CategoryMarkedContent},

	OpBeginCompat: {"BX", 0, CategoryCompatibility},
	OpEndCompat:   {"EX", 0, CategoryCompatibility},
}

var byMnemonic = func() map[string]Operator {
	m := make(map[string]Operator, opCount)
	for op := OpUnknown + 1; op < opCount; op++ {
		m[opTable[op].mnemonic] = op
	}
	return m
}()

// Lookup maps a mnemonic to its operator.
func Lookup(mnemonic string) (Operator, bool) {
	op, ok := byMnemonic[mnemonic]
	return op, ok
}

// String returns the mnemonic, or "?" for OpUnknown.
func (op Operator) String() string {
	if op <= OpUnknown || op >= opCount {
		return "?"
	}
	return opTable[op].mnemonic
}

// Operands is the fixed operand count, or -1 when it varies.
func (op Operator) Operands() int {
	if op < OpUnknown || op >= opCount {
		return variadic
	}
	return opTable[op].operands
}

func (op Operator) Category() Category {
	if op < OpUnknown || op >= opCount {
		return CategoryUnknown
	}
	return opTable[op].category
}
