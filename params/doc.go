/*
Package params implements the parameter vector of a stage and its hot-reload codec.

A Schema is derived from a stage descriptor's ParameterNames, ParameterTypes and
ParametersDefaultValues. A Vector is an immutable, schema-checked ordered list of values. The
Worker keeps its live Vector in a Store, which replaces it atomically: a reader sees either the
previous vector or the new one, never a mix.

# Wire format

The payload of a parameter message is a msgpack map:

	{"v": 1, "stage": "Differencing", "values": [true, false]}

Decode rejects payloads with an unknown version, a stage name that does not match the schema,
a value count different from the schema, or a value whose type cannot be coerced to the
declared type. A payload whose values are nil is reported as ErrNullVector so the caller can
ignore it.
*/
package params
