// Package schema defines the on-disk shape of flow and menu documents and the
// structural checks applied to them before compilation.
//
// Documents are parsed from YAML or JSON into generic maps, then decoded into
// the typed specs below:
//
//	main_menu: main
//	defaults:
//	  max_retries: 3
//	flows:
//	  - id: onboarding
//	    entry: ask_name
//	    triggers: [start]
//	    steps:
//	      - id: ask_name
//	        prompt: "What's your name?"
//	        input: {type: text, pattern: "^.{2,40}$"}
//	        save_as: name
//	        next: END
//	menus:
//	  - id: main
//	    prompt: "Hi {{name}}, pick one:"
//	    options:
//	      - {id: profile, label: Set up profile, flow: onboarding}
//
// Every problem found is reported through SchemaError, which aggregates all
// issues instead of stopping at the first one.
package schema
