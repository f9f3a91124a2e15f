package resource

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// The media walk is a fixed positional traversal of the portal's player
// markup: the second iframe on the resource page hosts the player shell,
// the first iframe inside the shell hosts the stream wrapper, and the
// first [src] element in that wrapper's body is the playable media. The
// portal does not version this structure; each hop fails loudly with
// ErrMediaNotFound instead of tripping over a missing element.
type mediaHop struct {
	name string
	js   string
}

var mediaWalk = []mediaHop{
	{
		name: "player shell frame",
		js: `() => {
			const frames = document.querySelectorAll('iframe');
			return frames.length > 1 ? frames[1].src : '';
		}`,
	},
	{
		name: "stream wrapper frame",
		js: `() => {
			const frame = document.querySelector('iframe');
			return frame ? frame.src : '';
		}`,
	},
	{
		name: "playable source",
		js: `() => {
			const el = document.querySelector('body').querySelector('[src]');
			return el ? el.src : '';
		}`,
	},
}

// MediaURL walks the nested player frames of the already-resolved page
// and returns the terminal playable media URL.
func (res *Resolution) MediaURL(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "MediaURL")
	defer span.End()

	for i, hop := range mediaWalk {
		val, err := res.session.Eval(ctx, hop.js)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, hop.name)
			return "", err
		}
		src := val.Str()
		if src == "" {
			span.SetStatus(codes.Error, hop.name)
			return "", fmt.Errorf("%w: %s missing", ErrMediaNotFound, hop.name)
		}

		last := i == len(mediaWalk)-1
		if last {
			span.SetAttributes(attribute.String("media_url", src))
			return src, nil
		}
		if err := res.session.Navigate(ctx, src); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, hop.name)
			return "", err
		}
	}

	// unreachable: the walk always terminates on its last hop
	return "", ErrMediaNotFound
}
