package phpast

// Children returns the direct child nodes of n in source order. Nested
// function and class declarations are opaque: their bodies are not children.
func Children(n Node) []Node {
	var out []Node
	add := func(nodes ...Node) {
		for _, c := range nodes {
			if c != nil {
				out = append(out, c)
			}
		}
	}

	switch n := n.(type) {
	case *ArrayDimFetch:
		add(n.Var, n.Dim)
	case *PropertyFetch:
		add(n.Var)
	case *Concat:
		add(n.Left, n.Right)
	case *LogicalOr:
		add(n.Left, n.Right)
	case *BinaryOp:
		add(n.Left, n.Right)
	case *Ternary:
		add(n.Cond, n.Then, n.Else)
	case *Cast:
		add(n.Expr)
	case *Call:
		add(n.Receiver)
		add(n.Args...)
	case *Assign:
		add(n.Var, n.Expr)
	case *AssignOp:
		add(n.Var, n.Expr)
	case *Unknown:
		add(n.Children...)
	case *If:
		add(n.Cond)
		add(n.Body...)
		for _, ei := range n.ElseIfs {
			add(ei.Cond)
			add(ei.Body...)
		}
		if n.Else != nil {
			add(n.Else.Body...)
		}
	case *Switch:
		add(n.Cond)
		for _, c := range n.Cases {
			add(c.Cond)
			add(c.Body...)
		}
	case *TryCatch:
		add(n.Body...)
		for _, c := range n.Catches {
			add(c.Body...)
		}
		add(n.Finally...)
	case *For:
		add(n.Init...)
		add(n.Cond...)
		add(n.Loop...)
		add(n.Body...)
	case *While:
		add(n.Cond)
		add(n.Body...)
	case *DoWhile:
		add(n.Body...)
		add(n.Cond)
	case *Foreach:
		add(n.Expr, n.Key, n.Value)
		add(n.Body...)
	case *Return:
		add(n.Expr)
	case *Throw:
		add(n.Expr)
	case *Global:
		add(n.Vars...)
	case *ConstDecl:
		for _, c := range n.Consts {
			add(c.Value)
		}
	case *Variable, *Literal, *ConstFetch, *Marker, *Break, *Continue,
		*FunctionDecl, *ClassDecl:
		// leaves, or opaque declarations
	}
	return out
}

// Inspect traverses the tree rooted at n in depth-first pre-order, calling
// f for each node. If f returns false, the children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// Calls returns every call expression inside n, including n itself,
// innermost first: arguments are evaluated before the call that uses them.
func Calls(n Node) []*Call {
	var calls []*Call
	var visit func(Node)
	visit = func(n Node) {
		if n == nil {
			return
		}
		for _, c := range Children(n) {
			visit(c)
		}
		if call, ok := n.(*Call); ok {
			calls = append(calls, call)
		}
	}
	visit(n)
	return calls
}

// CallsIn returns every call expression inside a statement list, innermost
// first within each statement.
func CallsIn(stmts []Node) []*Call {
	var calls []*Call
	for _, s := range stmts {
		calls = append(calls, Calls(s)...)
	}
	return calls
}

// Declarations returns the functions and methods declared in stmts, in
// source order. Functions declared inside other function bodies or inside
// if/else blocks are included.
func Declarations(stmts []Node) []*FunctionDecl {
	var out []*FunctionDecl
	var visit func([]Node)
	visit = func(stmts []Node) {
		for _, s := range stmts {
			switch s := s.(type) {
			case *FunctionDecl:
				out = append(out, s)
				visit(s.Body)
			case *ClassDecl:
				out = append(out, s.Methods...)
				for _, m := range s.Methods {
					visit(m.Body)
				}
			case *If:
				visit(s.Body)
				for _, ei := range s.ElseIfs {
					visit(ei.Body)
				}
				if s.Else != nil {
					visit(s.Else.Body)
				}
			}
		}
	}
	visit(stmts)
	return out
}

// QualifiedName returns "Class::method" for methods and the bare name for
// functions.
func (f *FunctionDecl) QualifiedName() string {
	if f.Class != "" {
		return f.Class + "::" + f.Name
	}
	return f.Name
}
