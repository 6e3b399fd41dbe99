/*
Package template loads rule templates from the HCL workflow language and
instantiates them into concrete jobs.

A workflow file declares rules:

	wildcard_constraints {
	  region = "[A-Za-z0-9_-]+"
	}

	rule "subsample" {
	  input = {
	    sequences  = "results/masked.fasta"
	    priorities = priority_inputs(wildcards.region, wildcards.subsample, "results/{region}/proximity_{focus}.tsv")
	  }
	  output = "results/{region}/sample-{subsample}.fasta"
	  params = {
	    group_by = subsample_param(wildcards.region, wildcards.subsample, "group_by")
	  }
	  threads   = 1
	  memory_mb = 200 + input_size_mb * 2
	  command   = ["augur", "filter", "--sequences", input.sequences, "--output", output]
	}

Output patterns are static strings (or an object of them) whose `{name}`
placeholders form the template's wildcards. Inputs and params are HCL
expressions evaluated against `wildcards`, `config`, and the functions of
the environment; every string an input expression yields is then expanded
as a wildcard pattern, so `{region}` or a config file key such as
`{reference}` may appear literally. The command is an argv list evaluated
after inputs, outputs, params, and threads are known; it is not wildcard
expanded.

A rule with `checkpoint = true` produces a single directory output whose
contents are only known after it runs. A rule with a `gather` block
aggregates one input per item of such a directory; it is instantiated as a
placeholder and materialized once the items are known.
*/
package template
