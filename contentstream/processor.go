package contentstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/coords"
	"github.com/wudi/pdfcodec/ir/raw"
)

var (
	// ErrUnbalanced reports q/Q, BT/ET or marked-content pairs that do not nest.
	ErrUnbalanced = errors.New("contentstream: unbalanced operators")
	// ErrOperands reports a known operator with the wrong number of operands
	// outside a BX/EX section.
	ErrOperands = errors.New("contentstream: wrong operand count")
)

type Context interface{ Done() <-chan struct{} }

type Processor interface {
	Process(ctx Context, ops []Operation, state *GraphicsState) error
	RegisterHandler(op Operator, h OperatorHandler)
}

type OperatorHandler interface {
	Handle(ctx *ExecutionContext, op Operation) error
}

// HandlerFunc adapts a function to OperatorHandler.
type HandlerFunc func(ctx *ExecutionContext, op Operation) error

func (f HandlerFunc) Handle(ctx *ExecutionContext, op Operation) error { return f(ctx, op) }

// ExecutionContext is the state visible to handlers. Handlers run after the
// processor has applied the operator's own effect.
type ExecutionContext struct {
	GraphicsState *GraphicsState
	TextState     *TextState
	Path          Path
	// Bounds covers every painted path in device space.
	Bounds  coords.Rect
	Painted bool
	Index   int

	inText bool
	marked int
	compat int
}

type GraphicsState struct {
	CTM       coords.Matrix
	LineWidth float64
	LineCap   LineCap
	LineJoin  LineJoin
	stack     []*GraphicsState
}

func (gs *GraphicsState) Save() { clone := *gs; gs.stack = append(gs.stack, &clone) }
func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	*gs = *gs.stack[n-1]
	gs.stack = gs.stack[:n-1]
	return nil
}

// Depth is the number of unmatched saves.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }

type TextState struct {
	Font           string
	FontSize       float64
	Leading        float64
	Render         TextRenderMode
	TextMatrix     coords.Matrix
	TextLineMatrix coords.Matrix
}

type processor struct{ handlers map[Operator]OperatorHandler }

func NewProcessor() Processor { return &processor{handlers: make(map[Operator]OperatorHandler)} }

func (p *processor) RegisterHandler(op Operator, h OperatorHandler) { p.handlers[op] = h }

func (p *processor) Process(ctx Context, ops []Operation, state *GraphicsState) error {
	if state == nil {
		state = &GraphicsState{CTM: coords.Identity(), LineWidth: 1}
	}
	ec := &ExecutionContext{
		GraphicsState: state,
		TextState:     &TextState{TextMatrix: coords.Identity(), TextLineMatrix: coords.Identity()},
	}
	base := state.Depth()
	for i, op := range ops {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return context.Canceled
			default:
			}
		}
		ec.Index = i
		if err := ec.apply(op); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i, op.Name(), err)
		}
		if h, ok := p.handlers[op.Op]; ok {
			if err := h.Handle(ec, op); err != nil {
				return err
			}
		}
	}
	switch {
	case state.Depth() != base:
		return fmt.Errorf("%w: %d unmatched q", ErrUnbalanced, state.Depth()-base)
	case ec.inText:
		return fmt.Errorf("%w: BT without ET", ErrUnbalanced)
	case ec.marked != 0:
		return fmt.Errorf("%w: %d unmatched BMC/BDC", ErrUnbalanced, ec.marked)
	}
	return nil
}

// Validate checks nesting and operand counts of ops.
func Validate(ops []Operation) error {
	return NewProcessor().Process(context.Background(), ops, nil)
}

// Bounds returns the device-space box of everything ops paint with paths.
func Bounds(ops []Operation) (coords.Rect, bool, error) {
	var box coords.Rect
	var painted bool
	p := NewProcessor()
	p.RegisterHandler(OpEndPath, HandlerFunc(func(ec *ExecutionContext, _ Operation) error {
		box, painted = ec.Bounds, ec.Painted
		return nil
	}))
	all := append(append([]Operation(nil), ops...), Operation{Op: OpEndPath})
	err := p.Process(context.Background(), all, nil)
	return box, painted, err
}

func (ec *ExecutionContext) apply(op Operation) error {
	if n := op.Op.Operands(); n >= 0 && op.Op != OpUnknown && len(op.Operands) != n {
		if ec.compat > 0 {
			return nil
		}
		return fmt.Errorf("%w: want %d, got %d", ErrOperands, n, len(op.Operands))
	}
	gs, ts := ec.GraphicsState, ec.TextState
	switch op.Op {
	case OpSave:
		gs.Save()
	case OpRestore:
		if err := gs.Restore(); err != nil {
			return fmt.Errorf("%w: Q without q", ErrUnbalanced)
		}
	case OpConcat:
		gs.CTM = matrix(op.Operands).Multiply(gs.CTM)
	case OpSetLineWidth:
		gs.LineWidth = number(op.Operands[0])
	case OpSetLineCap:
		gs.LineCap = LineCap(number(op.Operands[0]))
	case OpSetLineJoin:
		gs.LineJoin = LineJoin(number(op.Operands[0]))

	case OpBeginText:
		if ec.inText {
			return fmt.Errorf("%w: nested BT", ErrUnbalanced)
		}
		ec.inText = true
		ts.TextMatrix, ts.TextLineMatrix = coords.Identity(), coords.Identity()
	case OpEndText:
		if !ec.inText {
			return fmt.Errorf("%w: ET without BT", ErrUnbalanced)
		}
		ec.inText = false
	case OpSetFont:
		if name, ok := op.Operands[0].(raw.NameObj); ok {
			ts.Font = name.Val
		}
		ts.FontSize = number(op.Operands[1])
	case OpSetLeading:
		ts.Leading = number(op.Operands[0])
	case OpSetTextRender:
		ts.Render = TextRenderMode(number(op.Operands[0]))
	case OpSetTextMatrix:
		ts.TextLineMatrix = matrix(op.Operands)
		ts.TextMatrix = ts.TextLineMatrix
	case OpMoveText, OpMoveTextLeading:
		tx, ty := number(op.Operands[0]), number(op.Operands[1])
		if op.Op == OpMoveTextLeading {
			ts.Leading = -ty
		}
		ts.TextLineMatrix = coords.Translate(tx, ty).Multiply(ts.TextLineMatrix)
		ts.TextMatrix = ts.TextLineMatrix
	case OpNextLine, OpNextLineShowText, OpNextLineShowTextSpaced:
		ts.TextLineMatrix = coords.Translate(0, -ts.Leading).Multiply(ts.TextLineMatrix)
		ts.TextMatrix = ts.TextLineMatrix

	case OpMoveTo:
		ec.addSegment(SegMove, op.Operands)
	case OpLineTo:
		ec.addSegment(SegLine, op.Operands)
	case OpCurveTo, OpCurveToV, OpCurveToY:
		ec.addSegment(SegCurve, op.Operands)
	case OpClosePath:
		ec.Path = append(ec.Path, Segment{Kind: SegClose})
	case OpRectangle:
		x, y := number(op.Operands[0]), number(op.Operands[1])
		w, h := number(op.Operands[2]), number(op.Operands[3])
		ec.Path = append(ec.Path,
			Segment{Kind: SegMove, To: coords.Point{X: x, Y: y}},
			Segment{Kind: SegLine, To: coords.Point{X: x + w, Y: y}},
			Segment{Kind: SegLine, To: coords.Point{X: x + w, Y: y + h}},
			Segment{Kind: SegLine, To: coords.Point{X: x, Y: y + h}},
			Segment{Kind: SegClose})
	case OpStroke, OpCloseStroke, OpFill, OpFillCompat, OpFillEvenOdd, OpFillStroke,
		OpFillStrokeEvenOdd, OpCloseFillStroke, OpCloseFillStrokeEvenOdd:
		ec.paint()
		ec.Path = nil
	case OpEndPath:
		ec.Path = nil

	case OpBeginMarked, OpBeginMarkedProps:
		ec.marked++
	case OpEndMarked:
		if ec.marked == 0 {
			return fmt.Errorf("%w: EMC without BMC", ErrUnbalanced)
		}
		ec.marked--
	case OpBeginCompat:
		ec.compat++
	case OpEndCompat:
		if ec.compat > 0 {
			ec.compat--
		}
	}
	return nil
}

// addSegment takes the end point from the last operand pair; the pairs
// before it are curve control points.
func (ec *ExecutionContext) addSegment(kind SegmentKind, operands []raw.Object) {
	n := len(operands)
	seg := Segment{Kind: kind, To: coords.Point{X: number(operands[n-2]), Y: number(operands[n-1])}}
	for i := 0; i+3 < n; i += 2 {
		seg.Ctrl = append(seg.Ctrl, coords.Point{X: number(operands[i]), Y: number(operands[i+1])})
	}
	ec.Path = append(ec.Path, seg)
}

func (ec *ExecutionContext) paint() {
	ctm := ec.GraphicsState.CTM
	for _, pt := range ec.Path.Points() {
		ec.Bounds = ec.Bounds.Union(ctm.Transform(pt), !ec.Painted)
		ec.Painted = true
	}
}

func matrix(ops []raw.Object) coords.Matrix {
	var m coords.Matrix
	for i := range m {
		m[i] = number(ops[i])
	}
	return m
}

func number(o raw.Object) float64 {
	if n, ok := o.(raw.NumberObj); ok {
		return n.Float()
	}
	return 0
}
