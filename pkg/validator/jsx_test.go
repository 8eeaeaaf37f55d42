package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/propspec/pkg/parser"
)

func parseUsages(t *testing.T, code string) []Usage {
	t.Helper()
	pm := parser.NewParserManager(nil)
	defer pm.Close()

	tree, err := pm.Parse([]byte(code), parser.LanguageTypeScript, true)
	require.NoError(t, err)
	defer tree.Close()

	return ExtractUsages(tree.RootNode(), []byte(code))
}

func TestExtractUsages_SimpleComponent(t *testing.T) {
	usages := parseUsages(t, `<Button size="small">Click</Button>`)

	require.Len(t, usages, 1)
	assert.Equal(t, "Button", usages[0].Component)
	assert.Equal(t, Attr{Kind: AttrString, Value: "small"}, usages[0].Props["size"])
	assert.True(t, usages[0].HasChildren)
	assert.Equal(t, "", usages[0].Parent)
	assert.Equal(t, 1, usages[0].Line)
	assert.Equal(t, 1, usages[0].Column)
}

func TestExtractUsages_SelfClosing(t *testing.T) {
	usages := parseUsages(t, `<Input placeholder="text" />`)

	require.Len(t, usages, 1)
	assert.Equal(t, "Input", usages[0].Component)
	assert.Equal(t, "text", usages[0].Props["placeholder"].Value)
	assert.False(t, usages[0].HasChildren)
}

func TestExtractUsages_Nesting(t *testing.T) {
	code := `
<Card>
  <div>
    <Button>Hi</Button>
  </div>
</Card>
`
	usages := parseUsages(t, code)

	require.Len(t, usages, 2)
	assert.Equal(t, "Card", usages[0].Component)
	assert.Equal(t, "Button", usages[1].Component)
	assert.Equal(t, "Card", usages[1].Parent)
	assert.Equal(t, 4, usages[1].Line)
}

func TestExtractUsages_AttributeKinds(t *testing.T) {
	usages := parseUsages(t, `<Button onClick={() => {}} disabled size={'large'} label={t("ok")} />`)

	require.Len(t, usages, 1)
	props := usages[0].Props
	assert.Equal(t, AttrExpression, props["onClick"].Kind)
	assert.Equal(t, AttrBoolean, props["disabled"].Kind)
	assert.Equal(t, Attr{Kind: AttrString, Value: "large"}, props["size"])
	assert.Equal(t, AttrExpression, props["label"].Kind)
}

func TestExtractUsages_Spread(t *testing.T) {
	usages := parseUsages(t, `<Button {...rest} size="small" />`)

	require.Len(t, usages, 1)
	assert.True(t, usages[0].Spread)
	assert.Len(t, usages[0].Props, 1)
}

func TestExtractUsages_ElementInAttribute(t *testing.T) {
	usages := parseUsages(t, `<Card header={<Title level="2" />} />`)

	require.Len(t, usages, 2)
	assert.Equal(t, "Card", usages[0].Component)
	assert.Equal(t, "Title", usages[1].Component)
}

func TestExtractUsages_MemberTag(t *testing.T) {
	usages := parseUsages(t, `<Forms.Input name="email" />`)

	require.Len(t, usages, 1)
	assert.Equal(t, "Forms.Input", usages[0].Component)
	assert.Equal(t, "Input", lookupName(usages[0].Component))
}

func TestExtractUsages_NoJSX(t *testing.T) {
	assert.Empty(t, parseUsages(t, `export default function Page() { return null }`))
}
