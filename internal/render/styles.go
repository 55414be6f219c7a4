package render

import "golang.org/x/net/html/atom"

// DiagramMarkerClass identifies diagram placeholder containers.
const DiagramMarkerClass = "mermaid-diagram"

const (
	tableWrapperClasses = "w-full my-6 overflow-y-auto"
	tableClasses        = "w-full"
)

var defaultClasses = map[atom.Atom]string{
	atom.H1:         "mt-2 scroll-m-20 text-4xl font-bold tracking-tight",
	atom.H2:         "mt-10 scroll-m-20 border-b border-b-zinc-800 pb-1 text-3xl font-semibold tracking-tight first:mt-0",
	atom.H3:         "mt-8 scroll-m-20 text-2xl font-semibold tracking-tight",
	atom.H4:         "mt-8 scroll-m-20 text-xl font-semibold tracking-tight",
	atom.H5:         "mt-8 scroll-m-20 text-lg font-semibold tracking-tight",
	atom.H6:         "mt-8 scroll-m-20 text-base font-semibold tracking-tight",
	atom.A:          "font-medium text-zinc-900 underline underline-offset-4",
	atom.P:          "leading-7 [&:not(:first-child)]:mt-6",
	atom.Ul:         "my-6 ml-6 list-disc",
	atom.Ol:         "my-6 ml-6 list-decimal",
	atom.Li:         "mt-2",
	atom.Blockquote: "mt-6 border-l-2 border-zinc-300 pl-6 italic text-zinc-800 [&>*]:text-zinc-600",
	atom.Img:        "rounded-md border border-zinc-200",
	atom.Hr:         "my-4 border-zinc-200 md:my-8",
	atom.Tr:         "m-0 border-t border-zinc-300 p-0 even:bg-zinc-100",
	atom.Th:         "border border-zinc-200 px-4 py-2 text-left font-bold [&[align=center]]:text-center [&[align=right]]:text-right",
	atom.Td:         "border border-zinc-200 px-4 py-2 text-left [&[align=center]]:text-center [&[align=right]]:text-right",
	atom.Pre:        "mt-6 mb-4 overflow-x-auto rounded-lg bg-zinc-900 py-4",
	atom.Code:       "relative rounded border bg-zinc-300 bg-opacity-25 py-[0.2rem] px-[0.3rem] font-mono text-sm text-zinc-600",
}

// DefaultClasses returns the fixed class list for a mapped tag.
func DefaultClasses(a atom.Atom) string {
	switch a {
	case atom.Table:
		return tableClasses
	}
	return defaultClasses[a]
}
