package grammar

import "github.com/alecthomas/participle/v2/lexer"

// The textual surface of the IR: keyword-led s-expressions. Every form
// mirrors one Term variant; the printer in internal/lambda emits exactly
// this syntax.

type Node struct {
	Int      *int64          `  @Int`
	Str      *string         `| @String`
	Block    *BlockForm      `| @@`
	Let      *LetForm        `| @@`
	Letrec   *LetrecForm     `| @@`
	Fn       *FnForm         `| @@`
	Apply    *ApplyForm      `| @@`
	If       *IfForm         `| @@`
	Seq      *SeqForm        `| @@`
	While    *WhileForm      `| @@`
	For      *ForForm        `| @@`
	Assign   *AssignForm     `| @@`
	Exit     *ExitForm       `| @@`
	Catch    *CatchForm      `| @@`
	Try      *TryForm        `| @@`
	Switch   *SwitchForm     `| @@`
	StrSw    *StrswitchForm  `| @@`
	Send     *SendForm       `| @@`
	Event    *EventForm      `| @@`
	Ifused   *IfusedForm     `| @@`
	Makeblk  *MakeblockForm  `| @@`
	Field    *FieldForm      `| @@`
	Setfield *SetfieldForm   `| @@`
	Setfc    *SetfieldcForm  `| @@`
	Offsetr  *OffsetrefForm  `| @@`
	Offseti  *OffsetintForm  `| @@`
	Extcall  *ExtcallForm    `| @@`
	GenPrim  *GenPrimForm    `| @@`
	Name     *string         `| @Ident`
}

type BlockForm struct {
	Tag    int64   `"(" "block" @Int`
	Fields []*Node `@@* ")"`
}

type LetForm struct {
	Kind  string `"(" "let" @("strict" | "alias" | "opt" | "var")`
	Name  string `@Ident`
	Bound *Node  `@@`
	Body  *Node  `@@ ")"`
}

type LetrecForm struct {
	Bindings []*RecBinding `"(" "letrec" "(" @@* ")"`
	Body     *Node         `@@ ")"`
}

type RecBinding struct {
	Name  string `"(" @Ident`
	Bound *Node  `@@ ")"`
}

type FnForm struct {
	Pos    lexer.Position
	Tupled bool         `"(" "fn" @"tupled"?`
	Attrs  []string     `@Attr*`
	Params []*ParamForm `"(" @@* ")"`
	Body   *Node        `@@ ")"`
}

type ParamForm struct {
	Name string `@Ident`
	Kind string `(":" @("int" | "float" | "ptr" | "gen"))?`
}

type ApplyForm struct {
	Pos  lexer.Position
	Attr string  `"(" "apply" @Attr?`
	Fn   *Node   `@@`
	Args []*Node `@@* ")"`
}

type IfForm struct {
	Cond *Node `"(" "if" @@`
	Then *Node `@@`
	Else *Node `@@ ")"`
}

type SeqForm struct {
	First  *Node `"(" "seq" @@`
	Second *Node `@@ ")"`
}

type WhileForm struct {
	Cond *Node `"(" "while" @@`
	Body *Node `@@ ")"`
}

type ForForm struct {
	Name string `"(" "for" @Ident`
	Lo   *Node  `@@`
	Dir  string `@("to" | "downto")`
	Hi   *Node  `@@`
	Body *Node  `@@ ")"`
}

type AssignForm struct {
	Name  string `"(" "assign" @Ident`
	Value *Node  `@@ ")"`
}

type ExitForm struct {
	Label int64   `"(" "exit" @Int`
	Args  []*Node `@@* ")"`
}

type CatchForm struct {
	Body    *Node        `"(" "catch" @@`
	Label   int64        `"with" "(" @Int`
	Params  []*ParamForm `@@* ")"`
	Handler *Node        `@@ ")"`
}

type TryForm struct {
	Body    *Node  `"(" "try" @@`
	ExnVar  string `"with" @Ident`
	Handler *Node  `@@ ")"`
}

type SwitchForm struct {
	Pos       lexer.Position
	Scrut     *Node       `"(" "switch" @@`
	NumConsts int64       `"consts" @Int`
	Consts    []*CaseForm `"(" @@* ")"`
	NumBlocks int64       `"blocks" @Int`
	Blocks    []*CaseForm `"(" @@* ")"`
	Default   *Node       `("default" @@)? ")"`
}

type CaseForm struct {
	Index int64 `"(" "case" @Int`
	Body  *Node `@@ ")"`
}

type StrswitchForm struct {
	Pos     lexer.Position
	Scrut   *Node          `"(" "strswitch" @@`
	Cases   []*StrCaseForm `@@*`
	Default *Node          `("default" @@)? ")"`
}

type StrCaseForm struct {
	Pattern string `"(" "case" @String`
	Body    *Node  `@@ ")"`
}

type SendForm struct {
	Pos  lexer.Position
	Meth *Node   `"(" "send" @@`
	Obj  *Node   `@@`
	Args []*Node `@@* ")"`
}

type EventForm struct {
	Pos  lexer.Position
	Term *Node `"(" "event" @@ ")"`
}

type IfusedForm struct {
	Name string `"(" "ifused" @Ident`
	Term *Node  `@@ ")"`
}

type MakeblockForm struct {
	Pos   lexer.Position
	Tag   int64    `"(" "makeblock" @Int`
	Mut   string   `@("mut" | "imm")`
	Shape []string `"(" @("int" | "float" | "ptr" | "gen")* ")"`
	Args  []*Node  `@@* ")"`
}

type FieldForm struct {
	Pos   lexer.Position
	Index int64   `"(" "field" @Int`
	Args  []*Node `@@* ")"`
}

type SetfieldForm struct {
	Pos   lexer.Position
	Index int64   `"(" "setfield" @Int`
	Args  []*Node `@@* ")"`
}

type SetfieldcForm struct {
	Pos  lexer.Position
	Args []*Node `"(" "setfieldc" @@* ")"`
}

type OffsetrefForm struct {
	Pos   lexer.Position
	Delta int64   `"(" "offsetref" @Int`
	Args  []*Node `@@* ")"`
}

type OffsetintForm struct {
	Pos   lexer.Position
	Delta int64   `"(" "offsetint" @Int`
	Args  []*Node `@@* ")"`
}

type ExtcallForm struct {
	Pos  lexer.Position
	Name string  `"(" "extcall" @String`
	Args []*Node `@@* ")"`
}

type GenPrimForm struct {
	Pos  lexer.Position
	Op   string  `"(" @("revapply" | "dirapply" | "identity" | "bytes2str" | "str2bytes" | "raise" | "add" | "sub" | "mul" | "div" | "mod" | "and" | "or" | "xor" | "neg" | "not" | "eq" | "ne" | "lt" | "le" | "gt" | "ge")`
	Args []*Node `@@* ")"`
}
