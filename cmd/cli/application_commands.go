package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tyemirov/exres/internal/cache"
	"github.com/tyemirov/exres/internal/descriptor"
	exerrors "github.com/tyemirov/exres/internal/errors"
	"github.com/tyemirov/exres/internal/resolver"
	"github.com/tyemirov/exres/internal/utils"
	flagutils "github.com/tyemirov/exres/internal/utils/flags"
	rootutils "github.com/tyemirov/exres/internal/utils/roots"
	"github.com/tyemirov/exres/pkg/executors"
)

const (
	resolveCommandUsageConstant             = "resolve [descriptor...]"
	resolveCommandShortDescriptionConstant  = "Resolve executor descriptors into runnable artifacts"
	resolveCommandLongDescriptionConstant   = "resolve parses each descriptor, reuses a cached artifact when it is still valid, and otherwise clones or rebuilds the executor. Descriptors are URLs, local paths, std: names, or inline YAML/JSON objects; --file reads a JSON, YAML or TOML document holding one descriptor or a list."
	resolveCommandExampleConstant           = "exres resolve https://git.example.com/team/lint.git\nexres resolve '{url: \"file://./tools/fmt\", kind: Rust}'\nexres resolve --file executors.yaml --output json"
	resolveCommandAliasConstant             = "r"
	validateCommandUsageConstant            = "validate [descriptor...]"
	validateCommandShortDescriptionConstant = "Validate descriptors and print their canonical form"
	validateCommandLongDescriptionConstant  = "validate parses each descriptor, fills in defaults, and prints the canonical descriptor with secrets redacted together with its cache fingerprint. Nothing is acquired."
	cacheNamespaceUseNameConstant           = "cache"
	cacheNamespaceShortDescriptionConstant  = "Inspect and maintain the executor cache"
	cacheListUseNameConstant                = "list"
	cacheListAliasConstant                  = "ls"
	cacheListShortDescriptionConstant       = "List cached executors"
	cachePurgeUsageConstant                 = "purge [fingerprint...]"
	cachePurgeAliasConstant                 = "rm"
	cachePurgeShortDescriptionConstant      = "Remove cached executors (all of them when no fingerprint is given)"
	descriptorFileFlagNameConstant          = "file"
	descriptorFileFlagShorthandConstant     = "f"
	descriptorFileFlagUsageConstant         = "Read descriptors from a JSON, YAML or TOML document (a single descriptor or a list)."
	inlineObjectPrefixConstant              = "{"
	inlineListPrefixConstant                = "["
	cachePurgeReasonConstant                = "cli purge"
	missingDescriptorMessageConstant        = "at least one descriptor is required (as an argument or with --file)"
	descriptorFileReadTemplateConstant      = "unable to read descriptor file %s: %w"
	inlineDescriptorDecodeTemplateConstant  = "argument %d: %w"
	descriptorParseTemplateConstant         = "descriptor %d: %w"
)

// validationView is the printed result of validate.
type validationView struct {
	Fingerprint string         `json:"fingerprint" yaml:"fingerprint"`
	Descriptor  map[string]any `json:"descriptor" yaml:"descriptor"`
}

// cacheEntryView is the printed form of one cache entry.
type cacheEntryView struct {
	Fingerprint  string     `json:"fingerprint" yaml:"fingerprint"`
	Status       string     `json:"status,omitempty" yaml:"status,omitempty"`
	Variant      string     `json:"variant,omitempty" yaml:"variant,omitempty"`
	Location     string     `json:"location,omitempty" yaml:"location,omitempty"`
	Kind         string     `json:"kind,omitempty" yaml:"kind,omitempty"`
	Revision     string     `json:"revision,omitempty" yaml:"revision,omitempty"`
	ArtifactPath string     `json:"artifact_path,omitempty" yaml:"artifact_path,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	BuiltAt      *time.Time `json:"built_at,omitempty" yaml:"built_at,omitempty"`
	Problem      string     `json:"problem,omitempty" yaml:"problem,omitempty"`
}

func (application *Application) registerCommands(cobraCommand *cobra.Command) {
	resolveCommand := &cobra.Command{
		Use:     resolveCommandUsageConstant,
		Short:   resolveCommandShortDescriptionConstant,
		Long:    resolveCommandLongDescriptionConstant,
		Example: resolveCommandExampleConstant,
		Aliases: []string{resolveCommandAliasConstant},
		Args:    cobra.ArbitraryArgs,
		RunE:    application.runResolve,
	}
	bindDescriptorFlags(resolveCommand)
	cobraCommand.AddCommand(resolveCommand)

	validateCommand := &cobra.Command{
		Use:   validateCommandUsageConstant,
		Short: validateCommandShortDescriptionConstant,
		Long:  validateCommandLongDescriptionConstant,
		Args:  cobra.ArbitraryArgs,
		RunE:  application.runValidate,
	}
	bindDescriptorFlags(validateCommand)
	cobraCommand.AddCommand(validateCommand)

	cacheNamespaceCommand := newNamespaceCommand(cacheNamespaceUseNameConstant, cacheNamespaceShortDescriptionConstant)

	cacheListCommand := &cobra.Command{
		Use:     cacheListUseNameConstant,
		Short:   cacheListShortDescriptionConstant,
		Aliases: []string{cacheListAliasConstant},
		Args:    cobra.NoArgs,
		RunE:    application.runCacheList,
	}
	flagutils.EnsureOutputFlag(cacheListCommand, flagutils.OutputFormatYAML)
	cacheNamespaceCommand.AddCommand(cacheListCommand)

	cachePurgeCommand := &cobra.Command{
		Use:     cachePurgeUsageConstant,
		Short:   cachePurgeShortDescriptionConstant,
		Aliases: []string{cachePurgeAliasConstant},
		Args:    cobra.ArbitraryArgs,
		RunE:    application.runCachePurge,
	}
	cacheNamespaceCommand.AddCommand(cachePurgeCommand)

	cobraCommand.AddCommand(cacheNamespaceCommand)
}

func bindDescriptorFlags(command *cobra.Command) {
	flagutils.BindProjectFlags(command, flagutils.ProjectFlagValues{}, flagutils.DefaultProjectFlagDefinitions())
	flagutils.EnsureOutputFlag(command, flagutils.OutputFormatYAML)
	command.Flags().StringP(descriptorFileFlagNameConstant, descriptorFileFlagShorthandConstant, "", descriptorFileFlagUsageConstant)
}

func (application *Application) runResolve(command *cobra.Command, arguments []string) error {
	outputFormat, outputFormatError := flagutils.ResolveOutputFormat(command)
	if outputFormatError != nil {
		return configurationFailure(outputFormatError)
	}
	projectContext, values, collectError := application.collectDescriptors(command, arguments)
	if collectError != nil {
		return collectError
	}

	dependenciesConfig, configError := application.dependenciesConfig()
	if configError != nil {
		return configError
	}
	policy, policyError := application.configuration.Resolver.RetryPolicy()
	if policyError != nil {
		return configurationFailure(policyError)
	}
	concurrency, concurrencyError := application.configuration.Resolver.ResolvedConcurrency()
	if concurrencyError != nil {
		return configurationFailure(concurrencyError)
	}

	dependencies, dependenciesError := executors.BuildResolver(dependenciesConfig)
	if dependenciesError != nil {
		return configurationFailure(dependenciesError)
	}

	requests := make([]executors.Request, 0, len(values))
	for _, value := range values {
		requests = append(requests, executors.Request{
			Value:         value,
			ProjectRoot:   projectContext.ProjectRoot,
			WorkspaceRoot: projectContext.WorkspaceRoot,
		})
	}

	retryingResolver := executors.RetryingResolver{Delegate: dependencies.Service, Policy: policy}
	outcomes, resolveError := executors.ResolveAll(command.Context(), retryingResolver, requests, concurrency)

	if len(outcomes) == 1 {
		if resolveError != nil {
			return outcomes[0].Err
		}
		return renderDocument(command.OutOrStdout(), outputFormat, outcomes[0].Handle)
	}

	handles := make([]resolver.Handle, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			handles = append(handles, outcome.Handle)
		}
	}
	if renderError := renderDocument(command.OutOrStdout(), outputFormat, handles); renderError != nil {
		return renderError
	}
	executors.PrintSummary(command.ErrOrStderr(), outcomes)
	return resolveError
}

func (application *Application) runValidate(command *cobra.Command, arguments []string) error {
	outputFormat, outputFormatError := flagutils.ResolveOutputFormat(command)
	if outputFormatError != nil {
		return configurationFailure(outputFormatError)
	}
	projectContext, values, collectError := application.collectDescriptors(command, arguments)
	if collectError != nil {
		return collectError
	}

	parser := descriptor.NewParser(application.logger)
	views := make([]validationView, 0, len(values))
	for valueIndex, value := range values {
		executorDescriptor, parseError := parser.Parse(value, projectContext.ProjectRoot)
		if parseError != nil {
			return exerrors.Wrap(exerrors.OperationDescriptorParse, "", "", fmt.Errorf(descriptorParseTemplateConstant, valueIndex, parseError))
		}
		fingerprint, fingerprintError := resolver.Fingerprint(executorDescriptor)
		if fingerprintError != nil {
			return exerrors.Wrap(exerrors.OperationDescriptorParse, executorDescriptor.Location(), exerrors.ErrValidation, fingerprintError)
		}
		views = append(views, validationView{Fingerprint: fingerprint, Descriptor: descriptor.EncodeRedacted(executorDescriptor)})
	}

	if len(views) == 1 {
		return renderDocument(command.OutOrStdout(), outputFormat, views[0])
	}
	return renderDocument(command.OutOrStdout(), outputFormat, views)
}

func (application *Application) runCacheList(command *cobra.Command, arguments []string) error {
	outputFormat, outputFormatError := flagutils.ResolveOutputFormat(command)
	if outputFormatError != nil {
		return configurationFailure(outputFormatError)
	}
	store, storeError := application.openCacheStore()
	if storeError != nil {
		return storeError
	}

	entries, listError := store.List()
	if listError != nil {
		return listError
	}

	views := make([]cacheEntryView, 0, len(entries))
	for _, entry := range entries {
		view := cacheEntryView{Fingerprint: entry.Fingerprint, Problem: entry.Problem}
		if len(entry.Problem) == 0 {
			updatedAt := entry.Record.UpdatedAt
			view.Status = string(entry.Record.Status)
			view.Variant = entry.Record.Variant
			view.Location = entry.Record.Location
			view.Kind = entry.Record.Kind
			view.Revision = entry.Record.Revision
			view.ArtifactPath = entry.Record.ArtifactPath
			view.UpdatedAt = &updatedAt
			view.BuiltAt = entry.Record.BuiltAt
		}
		views = append(views, view)
	}
	return renderDocument(command.OutOrStdout(), outputFormat, views)
}

func (application *Application) runCachePurge(command *cobra.Command, arguments []string) error {
	store, storeError := application.openCacheStore()
	if storeError != nil {
		return storeError
	}

	removed := make([]string, 0, len(arguments))
	if len(arguments) == 0 {
		purged, purgeError := store.Purge()
		if purgeError != nil {
			return purgeError
		}
		removed = purged
	} else {
		for _, argument := range arguments {
			fingerprint := strings.ToLower(strings.TrimSpace(argument))
			if removeError := store.Remove(fingerprint, cachePurgeReasonConstant); removeError != nil {
				return removeError
			}
			removed = append(removed, fingerprint)
		}
	}

	for _, fingerprint := range removed {
		fmt.Fprintln(command.OutOrStdout(), fingerprint)
	}
	return nil
}

func (application *Application) openCacheStore() (*cache.Store, error) {
	cacheDirectory, cacheDirectoryError := application.configuration.Resolver.CacheRoot()
	if cacheDirectoryError != nil {
		return nil, configurationFailure(cacheDirectoryError)
	}
	store, storeError := cache.NewStore(cacheDirectory, application.logger)
	if storeError != nil {
		return nil, configurationFailure(storeError)
	}
	return store, nil
}

// collectDescriptors gathers descriptor values from the arguments and the --file document and
// resolves the project roots they are interpreted against.
func (application *Application) collectDescriptors(command *cobra.Command, arguments []string) (utils.ProjectContext, []any, error) {
	projectContext, rootsError := rootutils.Resolve(command, utils.ProjectContext{})
	if rootsError != nil {
		return utils.ProjectContext{}, nil, configurationFailure(rootsError)
	}

	values := make([]any, 0, len(arguments))
	for argumentIndex, argument := range arguments {
		trimmedArgument := strings.TrimSpace(argument)
		if !strings.HasPrefix(trimmedArgument, inlineObjectPrefixConstant) && !strings.HasPrefix(trimmedArgument, inlineListPrefixConstant) {
			values = append(values, argument)
			continue
		}
		decoded, decodeError := descriptor.DecodeDocument([]byte(trimmedArgument), descriptor.DocumentFormatYAML)
		if decodeError != nil {
			return utils.ProjectContext{}, nil, exerrors.Wrap(exerrors.OperationDescriptorParse, "", "", fmt.Errorf(inlineDescriptorDecodeTemplateConstant, argumentIndex, decodeError))
		}
		values = appendDocumentValues(values, decoded)
	}

	descriptorFilePath, _, flagError := flagutils.StringFlag(command, descriptorFileFlagNameConstant)
	if flagError == nil && len(strings.TrimSpace(descriptorFilePath)) > 0 {
		data, readError := os.ReadFile(descriptorFilePath)
		if readError != nil {
			return utils.ProjectContext{}, nil, configurationFailure(fmt.Errorf(descriptorFileReadTemplateConstant, descriptorFilePath, readError))
		}
		decoded, decodeError := descriptor.DecodeDocument(data, descriptor.DocumentFormatForPath(descriptorFilePath))
		if decodeError != nil {
			return utils.ProjectContext{}, nil, exerrors.Wrap(exerrors.OperationDescriptorParse, descriptorFilePath, "", decodeError)
		}
		values = appendDocumentValues(values, decoded)
	}

	if len(values) == 0 {
		return utils.ProjectContext{}, nil, exerrors.WrapMessage(exerrors.OperationDescriptorParse, "", exerrors.ErrValidation, missingDescriptorMessageConstant)
	}
	return projectContext, values, nil
}

func appendDocumentValues(values []any, decoded any) []any {
	if list, isList := decoded.([]any); isList {
		return append(values, list...)
	}
	return append(values, decoded)
}

func newNamespaceCommand(use string, shortDescription string, aliases ...string) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         shortDescription,
		Aliases:       aliases,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}
}
