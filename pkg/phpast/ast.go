// Package phpast defines the closed set of PHP syntax nodes consumed by the
// analysis engine, and a tree-sitter based front end that produces them.
//
// Every node type implements Node. The set is sealed: Node carries an
// unexported marker method, so only this package can add node kinds and
// consumers can switch over the concrete types exhaustively.
package phpast

// Pos is the source span of a node (1-based lines).
type Pos struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Position returns the span itself; embedded in every node.
func (p Pos) Position() Pos { return p }

// Node is a PHP syntax node.
type Node interface {
	Position() Pos
	node()
}

// File is a parsed PHP source file.
type File struct {
	Path  string
	Stmts []Node
}

// ---- expressions ----

// Variable is a variable reference such as $x. Dynamic is set for $$x and
// ${expr}; Name is then empty.
type Variable struct {
	Pos
	Name    string
	Dynamic bool
}

// ArrayDimFetch is an index access such as $a['k'] or $a[] (Dim == nil).
type ArrayDimFetch struct {
	Pos
	Var Node
	Dim Node
}

// PropertyFetch is an object property access such as $this->name.
type PropertyFetch struct {
	Pos
	Var  Node
	Name string
}

// LiteralKind classifies scalar literals.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralNull
)

// Literal is a scalar constant value. Value holds the unquoted text.
type Literal struct {
	Pos
	Kind  LiteralKind
	Value string
}

// ConstFetch is a bare name used as a value, such as EXTR_OVERWRITE.
type ConstFetch struct {
	Pos
	Name string
}

// Concat is the string concatenation operator ".".
type Concat struct {
	Pos
	Left  Node
	Right Node
}

// LogicalOr is "or" / "||".
type LogicalOr struct {
	Pos
	Left  Node
	Right Node
}

// BinaryOp is any other binary operator.
type BinaryOp struct {
	Pos
	Op    string
	Left  Node
	Right Node
}

// Ternary is cond ? then : else. Then is nil for the short form cond ?: else.
type Ternary struct {
	Pos
	Cond Node
	Then Node
	Else Node
}

// Cast is a type cast such as (int)$x.
type Cast struct {
	Pos
	Type string
	Expr Node
}

// CallKind distinguishes the call forms.
type CallKind int

const (
	CallFunction CallKind = iota
	CallMethod
	CallStatic
	// CallConstruct marks language constructs that behave like calls:
	// echo, print, include/require, exit/die.
	CallConstruct
)

// Call is a function, method, static method or call-like construct
// invocation. Name is the resolved callee name ("mysql_query", "query",
// "Db::query", "echo"); Receiver is the object or class expression.
type Call struct {
	Pos
	Kind     CallKind
	Name     string
	Receiver Node
	Args     []Node
}

// Assign is $var = expr (by value or by reference).
type Assign struct {
	Pos
	Var  Node
	Expr Node
}

// AssignOp is a compound assignment; Op is the operator without "=",
// e.g. "." for ".=".
type AssignOp struct {
	Pos
	Op   string
	Var  Node
	Expr Node
}

// Unknown is any expression kind the engine does not model. Children keeps
// the converted sub-expressions so nested calls stay visible.
type Unknown struct {
	Pos
	Kind     string
	Children []Node
}

// Marker is a synthetic node with no source counterpart, such as the
// "else" sentinel used as a branch condition.
type Marker struct {
	Pos
	Label string
}

// ---- statements ----

// If is if/elseif/else. Else is nil when absent.
type If struct {
	Pos
	Cond    Node
	Body    []Node
	ElseIfs []*ElseIf
	Else    *Else
}

// ElseIf is one elseif clause.
type ElseIf struct {
	Pos
	Cond Node
	Body []Node
}

// Else is the else clause.
type Else struct {
	Pos
	Body []Node
}

// Switch is switch/case.
type Switch struct {
	Pos
	Cond  Node
	Cases []*Case
}

// Case is one case; Cond is nil for default.
type Case struct {
	Pos
	Cond Node
	Body []Node
}

// TryCatch is try/catch/finally.
type TryCatch struct {
	Pos
	Body    []Node
	Catches []*Catch
	Finally []Node
}

// Catch is one catch clause. Type names the caught class (first of a union).
type Catch struct {
	Pos
	Type *ConstFetch
	Var  string
	Body []Node
}

// For is for(init; cond; loop) body.
type For struct {
	Pos
	Init []Node
	Cond []Node
	Loop []Node
	Body []Node
}

// While is while(cond) body.
type While struct {
	Pos
	Cond Node
	Body []Node
}

// DoWhile is do body while(cond).
type DoWhile struct {
	Pos
	Cond Node
	Body []Node
}

// Foreach is foreach(expr as key => value) body.
type Foreach struct {
	Pos
	Expr  Node
	Key   Node
	Value Node
	Body  []Node
}

// Return is return [expr].
type Return struct {
	Pos
	Expr Node
}

// Throw is throw expr.
type Throw struct {
	Pos
	Expr Node
}

// Break is break [n].
type Break struct {
	Pos
}

// Continue is continue [n].
type Continue struct {
	Pos
}

// Global is global $a, $b.
type Global struct {
	Pos
	Vars []Node
}

// ConstElem is one name = value pair of a const declaration.
type ConstElem struct {
	Name  string
	Value Node
}

// ConstDecl is const A = 1, B = 2.
type ConstDecl struct {
	Pos
	Consts []ConstElem
}

// Param is a formal parameter.
type Param struct {
	Pos
	Name string
}

// FunctionDecl is a function definition or a class method.
type FunctionDecl struct {
	Pos
	Name   string
	Class  string
	Params []*Param
	Body   []Node
}

// ParamNames returns the formal parameter names in declaration order.
func (f *FunctionDecl) ParamNames() []string {
	names := make([]string, 0, len(f.Params))
	for _, p := range f.Params {
		names = append(names, p.Name)
	}
	return names
}

// ClassDecl is a class, trait or interface declaration.
type ClassDecl struct {
	Pos
	Name    string
	Methods []*FunctionDecl
}

func (*Variable) node()      {}
func (*ArrayDimFetch) node() {}
func (*PropertyFetch) node() {}
func (*Literal) node()       {}
func (*ConstFetch) node()    {}
func (*Concat) node()        {}
func (*LogicalOr) node()     {}
func (*BinaryOp) node()      {}
func (*Ternary) node()       {}
func (*Cast) node()          {}
func (*Call) node()          {}
func (*Assign) node()        {}
func (*AssignOp) node()      {}
func (*Unknown) node()       {}
func (*Marker) node()        {}
func (*If) node()            {}
func (*Switch) node()        {}
func (*TryCatch) node()      {}
func (*For) node()           {}
func (*While) node()         {}
func (*DoWhile) node()       {}
func (*Foreach) node()       {}
func (*Return) node()        {}
func (*Throw) node()         {}
func (*Break) node()         {}
func (*Continue) node()      {}
func (*Global) node()        {}
func (*ConstDecl) node()     {}
func (*FunctionDecl) node()  {}
func (*ClassDecl) node()     {}
