// Package buildctx packages a build descriptor into the gzip-compressed tar
// archive the engine's image build endpoint expects as its build context.
//
// The archive always holds exactly one entry, the descriptor itself, named
// [DescriptorName]. Nothing touches the filesystem; the archive is assembled
// in memory and handed to the engine as a byte slice.
//
// # Example
//
//	archive, err := buildctx.Archive(buildctx.DefaultDescriptor)
//	if err != nil {
//	    return err
//	}
//	resp, err := cli.ImageBuild(ctx, bytes.NewReader(archive), opts)
package buildctx
