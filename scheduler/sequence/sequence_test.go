package sequence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/nightshift/errors"
)

const sampleESQ = `<?xml version="1.0" encoding="UTF-8"?>
<SequenceQueue version='1.6'>
<Observer>Anonymous</Observer>
<Autofocus enabled='true'>0</Autofocus>
<Job>
<Exposure>300</Exposure>
<Filter>Ha</Filter>
<Type>Light</Type>
<Prefix>
<RawPrefix>M42</RawPrefix>
<FilterEnabled>1</FilterEnabled>
<ExpEnabled>1</ExpEnabled>
<TimeStampEnabled>0</TimeStampEnabled>
</Prefix>
<Count>10</Count>
<Delay>5</Delay>
<FITSDirectory>/data</FITSDirectory>
<UploadMode>0</UploadMode>
</Job>
<Job>
<Exposure>0.01</Exposure>
<Filter>Ha</Filter>
<Type>Bias</Type>
<Prefix>
<RawPrefix></RawPrefix>
<FilterEnabled>1</FilterEnabled>
<ExpEnabled>0</ExpEnabled>
<TimeStampEnabled>0</TimeStampEnabled>
</Prefix>
<Count>20</Count>
<Delay>0</Delay>
<FITSDirectory>/data</FITSDirectory>
<UploadMode>1</UploadMode>
</Job>
</SequenceQueue>`

func TestParse(t *testing.T) {
	seq, err := Parse(strings.NewReader(sampleESQ))
	require.NoError(t, err)
	assert.True(t, seq.Autofocus)
	require.Len(t, seq.Items, 2)
	assert.True(t, seq.HasLightFrames())

	light := seq.Items[0]
	assert.Equal(t, FrameLight, light.Type)
	assert.Equal(t, 300.0, light.Exposure)
	assert.Equal(t, 10, light.Count)
	assert.Equal(t, 5, light.Delay)
	assert.Equal(t, UploadClient, light.Upload)
	assert.Equal(t, "M42_Light_Ha_300_secs", light.FullPrefix())
	assert.Equal(t, "/M42/Light/Ha", light.DirectoryPostfix("M42"))
	assert.Equal(t, "/data/M42/Light/Ha", light.Signature("M42"))
	assert.Equal(t, 3050.0, light.Duration(10))

	bias := seq.Items[1]
	assert.Equal(t, FrameBias, bias.Type)
	assert.Equal(t, UploadRemote, bias.Upload)
	assert.Equal(t, "Bias", bias.FullPrefix(), "filter only applies to light and flat frames")
	assert.Equal(t, "/M42/Bias", bias.DirectoryPostfix("M42"))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(strings.NewReader("<SequenceQueue><Job>"))
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.esq"))
	assert.True(t, errors.IsNotFoundError(err))
}

func TestCompletedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"M42_Light_Ha_300_secs_001.fits",
		"M42_Light_Ha_300_secs_002.fits",
		"M42_Light_OIII_300_secs_001.fits",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "M42_Light_Ha_300_secs_sub"), 0o755))

	n, err := CompletedFiles(dir, "M42_Light_Ha_300_secs")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = CompletedFiles(filepath.Join(dir, "missing"), "x")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
