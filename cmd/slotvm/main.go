package main

import (
	"fmt"
	"os"

	"slotvm/pkg/value"
	"slotvm/pkg/vm"
)

// Assembles a few fragments by hand, prints their disassembly and runs them.
// Serves as a smoke test and a worked example of the assembly API.
func main() {
	machine := vm.NewVM()

	run := func(name string, code *vm.CodeFragment) {
		fmt.Printf("== %s\n%s", name, code)
		res, owned, err := machine.Run(code)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("=> %s\n\n", res)
		if owned {
			res.Release()
		}
	}

	// (2000000000 + 2000000000) * 2: int32 operands widening to int64.
	arith := vm.NewCodeFragment()
	arith.AppendConstVal(value.NewInt32(2_000_000_000))
	arith.AppendConstVal(value.NewInt32(2_000_000_000))
	arith.AppendAdd()
	arith.AppendConstVal(value.NewInt32(2))
	arith.AppendMul()
	run("widening arithmetic", arith)

	// split("a,b,c", ",") via the function opcode.
	split := vm.NewCodeFragment()
	split.AppendConstVal(value.NewString("a,b,c"))
	split.AppendConstVal(value.NewString(","))
	split.AppendFunction(vm.BuiltinSplit, 2)
	run("split", split)

	// Field access over a document read from a slot, with a conditional
	// default: fillEmpty(doc.price, 0).
	doc := value.NewObject()
	doc.Set("sku", value.NewString("A-7131"))
	doc.Set("price", value.NewDouble(19.99))
	slot := vm.NewViewOfValueAccessor(value.NewObjectValue(doc))

	lookup := vm.NewCodeFragment()
	lookup.AppendAccessVal(slot)
	lookup.AppendConstVal(value.NewString("price"))
	lookup.AppendGetField()
	lookup.AppendConstVal(value.NewInt32(0))
	lookup.AppendFillEmpty()
	run("field lookup with default", lookup)

	// Sum a stream of values with the compensated-sum accumulator, then
	// finalize.
	inputs := []value.Value{
		value.NewInt32(7),
		value.NewDouble(0.25),
		value.NewInt64(1 << 40),
	}
	acc := vm.NewOwnedValueAccessor(value.Nothing)
	for _, in := range inputs {
		step := vm.NewCodeFragment()
		step.AppendMoveVal(acc)
		step.AppendConstVal(in)
		step.AppendFunction(vm.BuiltinAggDoubleDoubleSum, 2)
		res, _, err := machine.Run(step)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		acc.Reset(res)
	}
	fin := vm.NewCodeFragment()
	fin.AppendMoveVal(acc)
	fin.AppendFunction(vm.BuiltinDoubleDoubleSumFinalize, 1)
	run("compensated sum", fin)
}
